// Package simulator adapts external models to the design loop: in-process
// functions and command-line simulators driven through their input files.
package simulator

import (
	"context"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

// Func evaluates a model in-process
type Func func(ctx context.Context, params []float64) ([]float64, error)

// Evaluate runs the function; errors and non-finite outputs are reported as SimulatorFailureError
func (f Func) Evaluate(ctx context.Context, params models.ParameterVector, runLabel string) (models.ObservationVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure(runLabel, err, "")
	}
	out, err := f(ctx, params.Values())
	if err != nil {
		return nil, failure(runLabel, err, "")
	}
	if err := checkFinite(out); err != nil {
		return nil, failure(runLabel, err, "")
	}
	return models.ObservationVector(out).Clone(), nil
}

func checkFinite(out []float64) error {
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("output %d is not finite: %g", i, v)
		}
	}
	return nil
}

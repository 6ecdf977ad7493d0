package design

import (
	"context"
	"fmt"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/surrogate"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

// ErrorModelSource supplies the source-error part of the likelihood variance.
// It is asked once per iteration, after the surrogate fit, so file-backed
// sources can pick up edits made while a campaign runs.
type ErrorModelSource interface {
	ErrorModel(ctx context.Context, ens *surrogate.Ensemble) (models.ErrorModel, error)
}

// ErrorModelFunc adapts a function to ErrorModelSource
type ErrorModelFunc func(ctx context.Context, ens *surrogate.Ensemble) (models.ErrorModel, error)

func (f ErrorModelFunc) ErrorModel(ctx context.Context, ens *surrogate.Ensemble) (models.ErrorModel, error) {
	return f(ctx, ens)
}

// LOOCVSource estimates the surrogate error from leave-one-out residuals of the fit
type LOOCVSource struct{}

func (LOOCVSource) ErrorModel(_ context.Context, ens *surrogate.Ensemble) (models.ErrorModel, error) {
	if ens == nil {
		return nil, fmt.Errorf("loocv error model needs a fitted surrogate")
	}
	return ens.LOOCV()
}

// StaticSource returns the same variances every iteration
type StaticSource models.ErrorModel

func (s StaticSource) ErrorModel(context.Context, *surrogate.Ensemble) (models.ErrorModel, error) {
	return append(models.ErrorModel(nil), s...), nil
}

// MeasurementVariance returns a uniform measurement-error model over outputs
func MeasurementVariance(outputs int, variance float64) models.ErrorModel {
	if variance <= 0 {
		return nil
	}
	em := make(models.ErrorModel, outputs)
	for i := range em {
		em[i] = variance
	}
	return em
}

// combineErrorModel asks the source for this iteration's variances and adds
// the measurement variance; the result must be strictly positive everywhere
func combineErrorModel(ctx context.Context, src ErrorModelSource, measurement models.ErrorModel, ens *surrogate.Ensemble, outputs int) (models.ErrorModel, error) {
	var source models.ErrorModel
	if src != nil {
		em, err := src.ErrorModel(ctx, ens)
		if err != nil {
			return nil, fmt.Errorf("error model: %w", err)
		}
		source = em
	}
	em, err := models.Combine(source, measurement)
	if err != nil {
		return nil, err
	}
	if em == nil {
		return nil, fmt.Errorf("no error model configured")
	}
	if err := em.Validate(outputs); err != nil {
		return nil, err
	}
	return em, nil
}

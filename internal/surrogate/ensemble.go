package surrogate

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

// predictChunk bounds the number of query rows one prediction task handles
const predictChunk = 2048

// Ensemble holds one independent GP per output dimension
type Ensemble struct {
	gps []*GP
}

// FitEnsemble fits one GP per output dimension of the snapshot. Dimensions are
// fit concurrently on at most workers goroutines (0 means GOMAXPROCS); each
// dimension draws its restarts from rng.Derive(m), so the result does not
// depend on scheduling.
func FitEnsemble(ctx context.Context, snap *models.CollocationSnapshot, cfg Config, rng *utils.RandSource, workers int) (*Ensemble, error) {
	if snap.Len() < MinPoints {
		return nil, &InsufficientDataError{Points: snap.Len(), Needed: MinPoints}
	}
	if rng == nil {
		rng = utils.NewRandSource(1)
	}

	x := snap.Inputs()
	gps := make([]*GP, snap.Outputs())

	p := pool.New().WithMaxGoroutines(poolSize(workers)).WithContext(ctx).WithFirstError()
	for m := range gps {
		y := snap.OutputColumn(m)
		child := rng.Derive(uint64(m))
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gp, err := Fit(x, y, cfg, child)
			if err != nil {
				var oe *OptimizationError
				if errors.As(err, &oe) {
					oe.Output = m
				}
				return fmt.Errorf("output %d: %w", m, err)
			}
			gps[m] = gp
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return &Ensemble{gps: gps}, nil
}

// Len returns the number of output dimensions
func (e *Ensemble) Len() int {
	return len(e.gps)
}

// GP returns the emulator of output dimension m
func (e *Ensemble) GP(m int) *GP {
	return e.gps[m]
}

// Predict evaluates every output dimension at the rows of q and returns M×S
// mean and standard deviation matrices.
func (e *Ensemble) Predict(ctx context.Context, q mat.Matrix, workers int) (mean, std *mat.Dense, err error) {
	s, _ := q.Dims()
	mOut := len(e.gps)
	mean = mat.NewDense(mOut, s, nil)
	std = mat.NewDense(mOut, s, nil)

	type chunk struct{ lo, hi int }
	var chunks []chunk
	for lo := 0; lo < s; lo += predictChunk {
		chunks = append(chunks, chunk{lo, min(lo+predictChunk, s)})
	}

	p := pool.New().WithMaxGoroutines(poolSize(workers)).WithContext(ctx).WithFirstError()
	for m, gp := range e.gps {
		for _, c := range chunks {
			p.Go(func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				rows := q
				if c.lo != 0 || c.hi != s {
					rows = sliceRows(q, c.lo, c.hi)
				}
				mu, sd, err := gp.Predict(rows)
				if err != nil {
					return fmt.Errorf("output %d: %w", m, err)
				}
				// each task owns a disjoint block of the result matrices
				for j := range mu {
					mean.Set(m, c.lo+j, mu[j])
					std.Set(m, c.lo+j, sd[j])
				}
				return nil
			})
		}
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}
	return mean, std, nil
}

// LOOCV returns the closed-form leave-one-out error of every output dimension
func (e *Ensemble) LOOCV() (models.ErrorModel, error) {
	out := make(models.ErrorModel, len(e.gps))
	for m, gp := range e.gps {
		v, err := gp.LOOCV()
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", m, err)
		}
		out[m] = v
	}
	return out, nil
}

func sliceRows(q mat.Matrix, lo, hi int) mat.Matrix {
	if s, ok := q.(interface {
		Slice(i, k, j, l int) mat.Matrix
	}); ok {
		_, c := q.Dims()
		return s.Slice(lo, hi, 0, c)
	}
	_, c := q.Dims()
	out := mat.NewDense(hi-lo, c, nil)
	for i := lo; i < hi; i++ {
		for j := 0; j < c; j++ {
			out.Set(i-lo, j, q.At(i, j))
		}
	}
	return out
}

func poolSize(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

package surrogate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

const (
	// MinPoints is the smallest training set a GP can be fit to
	MinPoints = 2

	// DefaultNugget is the diagonal jitter in standardised target units
	DefaultNugget = 2e-4
	// DefaultRestarts is the number of random restarts after the first start
	DefaultRestarts = 10

	minAmplitude = 1e-5
	maxAmplitude = 1e5

	// returned by the objective when the covariance is not positive definite
	failedFitPenalty = 1e25
)

// Bounds is a closed interval for one length-scale
type Bounds struct {
	Lo, Hi float64
}

// Config controls a GP fit
type Config struct {
	// LengthScaleBounds has one entry per parameter dimension
	LengthScaleBounds []Bounds
	// InitialLengthScales is the first optimiser start; nil means the bounds' midpoints
	InitialLengthScales []float64
	Nugget              float64
	Restarts            int
}

// DefaultConfig returns a config with the given bounds and default nugget and restarts
func DefaultConfig(bounds []Bounds) Config {
	return Config{
		LengthScaleBounds: bounds,
		Nugget:            DefaultNugget,
		Restarts:          DefaultRestarts,
	}
}

func (c Config) validate(dims int) error {
	if len(c.LengthScaleBounds) != dims {
		return fmt.Errorf("%w: %d length-scale bounds for %d parameters", models.ErrDimensionMismatch, len(c.LengthScaleBounds), dims)
	}
	for d, b := range c.LengthScaleBounds {
		if !(b.Lo > 0) || b.Hi < b.Lo || math.IsInf(b.Hi, 0) {
			return fmt.Errorf("length-scale bounds %d invalid: [%g, %g]", d, b.Lo, b.Hi)
		}
	}
	if c.InitialLengthScales != nil && len(c.InitialLengthScales) != dims {
		return fmt.Errorf("%w: %d initial length-scales for %d parameters", models.ErrDimensionMismatch, len(c.InitialLengthScales), dims)
	}
	if c.Nugget < 0 {
		return fmt.Errorf("nugget cannot be negative, got %g", c.Nugget)
	}
	if c.Restarts < 0 {
		return fmt.Errorf("restarts cannot be negative, got %d", c.Restarts)
	}
	return nil
}

// GP is a fitted Gaussian process emulator of one output dimension
type GP struct {
	kernel Kernel
	x      *mat.Dense
	chol   mat.Cholesky
	alpha  *mat.VecDense
	yMean  float64
	yStd   float64
	logML  float64
}

// Fit trains a GP on K collocation points (rows of x) and their observed values.
// Hyperparameters maximise the log marginal likelihood over 1+Restarts Nelder-Mead
// starts; random starts are drawn from rng so the fit is reproducible.
func Fit(x mat.Matrix, y []float64, cfg Config, rng *utils.RandSource) (*GP, error) {
	k, dims := x.Dims()
	if k != len(y) {
		return nil, fmt.Errorf("%w: %d points but %d values", models.ErrDimensionMismatch, k, len(y))
	}
	if k < MinPoints {
		return nil, &InsufficientDataError{Points: k, Needed: MinPoints}
	}
	if err := cfg.validate(dims); err != nil {
		return nil, err
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("observed value %d is not finite: %g", i, v)
		}
	}

	xd := mat.DenseCopyOf(x)
	mean, std := stat.MeanStdDev(y, nil)
	if !(std > 0) {
		std = 1
	}
	ys := make([]float64, k)
	for i, v := range y {
		ys[i] = (v - mean) / std
	}
	yv := mat.NewVecDense(k, ys)

	if rng == nil {
		rng = utils.NewRandSource(1)
	}

	space := newHyperSpace(cfg)
	objective := func(u []float64) float64 {
		kern := space.kernel(u)
		nll, ok := negLogMarginal(kern, xd, yv, cfg.Nugget)
		if !ok {
			return failedFitPenalty
		}
		return nll
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 50,
		},
		FuncEvaluations: 2000,
	}

	starts := make([][]float64, 0, cfg.Restarts+1)
	starts = append(starts, space.initial(cfg.InitialLengthScales))
	for i := 0; i < cfg.Restarts; i++ {
		starts = append(starts, space.random(rng))
	}

	var (
		bestU   []float64
		bestF   = math.Inf(1)
		lastErr error
	)
	for _, start := range starts {
		// Hitting the evaluation limit still leaves a usable location.
		result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
		if result == nil {
			lastErr = err
			continue
		}
		if math.IsNaN(result.F) || math.IsInf(result.F, 0) || result.F >= failedFitPenalty {
			lastErr = errors.New("covariance not positive definite at optimum")
			if err != nil {
				lastErr = err
			}
			continue
		}
		if result.F < bestF {
			bestF = result.F
			bestU = append(bestU[:0], result.X...)
		}
	}
	if bestU == nil {
		if lastErr == nil {
			lastErr = errors.New("no successful start")
		}
		return nil, &OptimizationError{Attempts: len(starts), Err: lastErr}
	}

	gp := &GP{
		kernel: space.kernel(bestU),
		x:      xd,
		yMean:  mean,
		yStd:   std,
		logML:  -bestF,
	}
	if !gp.chol.Factorize(gp.kernel.Gram(xd, cfg.Nugget)) {
		return nil, &OptimizationError{Attempts: len(starts), Err: errors.New("covariance not positive definite at optimum")}
	}
	gp.alpha = mat.NewVecDense(k, nil)
	if err := ignoreCondition(gp.chol.SolveVecTo(gp.alpha, yv)); err != nil {
		return nil, &OptimizationError{Attempts: len(starts), Err: err}
	}
	return gp, nil
}

// negLogMarginal returns -log p(y | x, kernel) for standardised targets
func negLogMarginal(kern Kernel, x *mat.Dense, y *mat.VecDense, nugget float64) (float64, bool) {
	var chol mat.Cholesky
	if !chol.Factorize(kern.Gram(x, nugget)) {
		return 0, false
	}
	n := y.Len()
	alpha := mat.NewVecDense(n, nil)
	if err := ignoreCondition(chol.SolveVecTo(alpha, y)); err != nil {
		return 0, false
	}
	nll := 0.5*mat.Dot(y, alpha) + 0.5*chol.LogDet() + 0.5*float64(n)*math.Log(2*math.Pi)
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return 0, false
	}
	return nll, true
}

// Kernel returns the fitted kernel; the amplitude is in standardised target units
func (g *GP) Kernel() Kernel {
	return Kernel{Amplitude: g.kernel.Amplitude, LengthScales: append([]float64(nil), g.kernel.LengthScales...)}
}

// LogMarginalLikelihood returns the optimised log marginal likelihood of the standardised targets
func (g *GP) LogMarginalLikelihood() float64 {
	return g.logML
}

// Len returns the number of training points
func (g *GP) Len() int {
	return g.alpha.Len()
}

// Predict returns the posterior mean and standard deviation at each row of q, in original units.
// The standard deviation excludes the nugget.
func (g *GP) Predict(q mat.Matrix) (mean, std []float64, err error) {
	s, dims := q.Dims()
	if _, d := g.x.Dims(); d != dims {
		return nil, nil, fmt.Errorf("%w: query has %d parameters, model has %d", models.ErrDimensionMismatch, dims, d)
	}

	cross := g.kernel.Cross(g.x, q)
	var solved mat.Dense
	if err := ignoreCondition(g.chol.SolveTo(&solved, cross)); err != nil {
		return nil, nil, fmt.Errorf("failed to solve predictive system: %w", err)
	}

	n := g.Len()
	mean = make([]float64, s)
	std = make([]float64, s)
	col := make([]float64, n)
	sol := make([]float64, n)
	for j := 0; j < s; j++ {
		mat.Col(col, j, cross)
		mat.Col(sol, j, &solved)
		mu := floats.Dot(col, g.alpha.RawVector().Data)
		variance := g.kernel.Amplitude - floats.Dot(col, sol)
		if variance < 0 {
			variance = 0
		}
		mean[j] = g.yMean + g.yStd*mu
		std[j] = g.yStd * math.Sqrt(variance)
	}
	return mean, std, nil
}

// LOOCV returns the mean squared leave-one-out residual in original units,
// computed in closed form from the fitted covariance.
func (g *GP) LOOCV() (float64, error) {
	var inv mat.SymDense
	if err := ignoreCondition(g.chol.InverseTo(&inv)); err != nil {
		return 0, fmt.Errorf("failed to invert covariance: %w", err)
	}
	n := g.Len()
	var sum float64
	for i := 0; i < n; i++ {
		r := g.alpha.AtVec(i) / inv.At(i, i)
		sum += r * r
	}
	return g.yStd * g.yStd * sum / float64(n), nil
}

// ignoreCondition drops gonum's ill-conditioning warning; the solution is still computed
func ignoreCondition(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}
	return err
}

// hyperSpace maps an unconstrained optimiser vector to bounded hyperparameters.
// u[0] drives the amplitude, u[1:] the length-scales; each is squashed through a
// logistic onto [log lo, log hi].
type hyperSpace struct {
	lo, hi []float64 // log bounds
}

func newHyperSpace(cfg Config) hyperSpace {
	dims := len(cfg.LengthScaleBounds)
	h := hyperSpace{lo: make([]float64, dims+1), hi: make([]float64, dims+1)}
	h.lo[0], h.hi[0] = math.Log(minAmplitude), math.Log(maxAmplitude)
	for d, b := range cfg.LengthScaleBounds {
		h.lo[d+1], h.hi[d+1] = math.Log(b.Lo), math.Log(b.Hi)
	}
	return h
}

func (h hyperSpace) kernel(u []float64) Kernel {
	ls := make([]float64, len(u)-1)
	for d := range ls {
		ls[d] = math.Exp(h.value(d+1, u[d+1]))
	}
	return Kernel{Amplitude: math.Exp(h.value(0, u[0])), LengthScales: ls}
}

func (h hyperSpace) value(i int, u float64) float64 {
	return h.lo[i] + (h.hi[i]-h.lo[i])/(1+math.Exp(-u))
}

func (h hyperSpace) unconstrained(i int, v float64) float64 {
	if h.hi[i] == h.lo[i] {
		return 0
	}
	f := (v - h.lo[i]) / (h.hi[i] - h.lo[i])
	f = math.Min(math.Max(f, 1e-6), 1-1e-6)
	return math.Log(f / (1 - f))
}

// initial starts at unit amplitude and the given (or midpoint) length-scales
func (h hyperSpace) initial(lengthScales []float64) []float64 {
	u := make([]float64, len(h.lo))
	u[0] = h.unconstrained(0, 0)
	for d := 1; d < len(u); d++ {
		if lengthScales != nil {
			u[d] = h.unconstrained(d, math.Log(lengthScales[d-1]))
		} else {
			u[d] = h.unconstrained(d, 0.5*(h.lo[d]+h.hi[d]))
		}
	}
	return u
}

// random draws every hyperparameter log-uniformly within its bounds
func (h hyperSpace) random(rng *utils.RandSource) []float64 {
	u := make([]float64, len(h.lo))
	for i := range u {
		u[i] = h.unconstrained(i, rng.UniformFloat64(h.lo[i], h.hi[i]))
	}
	return u
}

package scoring

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

var (
	// ErrEmptySamples indicates a scoring request without any sample rows
	ErrEmptySamples = errors.New("no samples to score")
	// ErrInvalidErrorModel indicates a non-positive or non-finite likelihood variance
	ErrInvalidErrorModel = errors.New("invalid error model")
)

// DegenerateScoreError reports a BME that collapsed to zero. It is a warning:
// the score is still returned with RE set to zero.
type DegenerateScoreError struct {
	LogBME float64
}

func (e *DegenerateScoreError) Error() string {
	return fmt.Sprintf("degenerate score: BME underflowed to zero (log BME = %g), RE reported as 0", e.LogBME)
}

// Likelihood evaluates the Gaussian log-likelihood of model outputs against
// the measured observations under a fixed error model.
type Likelihood struct {
	obs      []float64
	variance []float64
	norm     float64 // -1/2 sum_m log(2 pi v_m)
}

// NewLikelihood validates the observations and error model
func NewLikelihood(obs models.ObservationVector, errModel models.ErrorModel) (*Likelihood, error) {
	if len(obs) != len(errModel) {
		return nil, fmt.Errorf("%w: %d observations but %d error variances", models.ErrDimensionMismatch, len(obs), len(errModel))
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: empty observation vector", models.ErrDimensionMismatch)
	}
	var norm float64
	for m, v := range errModel {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: variance %d is %g", ErrInvalidErrorModel, m, v)
		}
		norm -= 0.5 * math.Log(2*math.Pi*v)
	}
	return &Likelihood{
		obs:      append([]float64(nil), obs...),
		variance: append([]float64(nil), errModel...),
		norm:     norm,
	}, nil
}

// Outputs returns the observation dimensionality
func (l *Likelihood) Outputs() int {
	return len(l.obs)
}

// LogLikelihood returns log p(obs | pred) for one model output row
func (l *Likelihood) LogLikelihood(pred []float64) float64 {
	ll := l.norm
	for m, p := range pred {
		d := p - l.obs[m]
		ll -= d * d / (2 * l.variance[m])
	}
	return ll
}

// Score computes BME and RE of an S×M matrix of model outputs
func Score(pred mat.Matrix, obs models.ObservationVector, errModel models.ErrorModel) (models.ScorePair, error) {
	lik, err := NewLikelihood(obs, errModel)
	if err != nil {
		return models.ScorePair{}, err
	}
	s, m := pred.Dims()
	if m != lik.Outputs() {
		return models.ScorePair{}, fmt.Errorf("%w: predictions have %d outputs, observations %d", models.ErrDimensionMismatch, m, lik.Outputs())
	}
	if s == 0 {
		return models.ScorePair{}, ErrEmptySamples
	}

	logL := make([]float64, s)
	row := make([]float64, m)
	for i := 0; i < s; i++ {
		mat.Row(row, i, pred)
		logL[i] = lik.LogLikelihood(row)
	}
	return ScoreLogLikelihoods(logL)
}

// ScoreLogLikelihoods reduces per-sample log-likelihoods to BME and RE.
//
//	log BME = logsumexp(logL) - log S
//	RE      = 1/S sum_s w_s log w_s,  w_s = exp(logL_s - log BME)
//
// A BME that underflows to zero marks the pair Degenerate with RE = 0.
func ScoreLogLikelihoods(logL []float64) (models.ScorePair, error) {
	s := len(logL)
	if s == 0 {
		return models.ScorePair{}, ErrEmptySamples
	}
	for _, v := range logL {
		if math.IsNaN(v) {
			return models.ScorePair{}, fmt.Errorf("%w: NaN log-likelihood", ErrInvalidErrorModel)
		}
	}

	logBME := floats.LogSumExp(logL) - math.Log(float64(s))
	bme := math.Exp(logBME)
	if bme == 0 || math.IsInf(logBME, -1) || math.IsNaN(logBME) {
		return models.ScorePair{BME: 0, RE: 0, LogBME: math.Inf(-1), Degenerate: true}, nil
	}

	var re float64
	for _, v := range logL {
		lw := v - logBME
		w := math.Exp(lw)
		if w == 0 {
			continue
		}
		re += w * lw
	}
	re /= float64(s)
	if re < 0 || math.IsNaN(re) {
		re = 0
	}
	if math.IsInf(bme, 1) {
		bme = math.MaxFloat64
	}
	return models.ScorePair{BME: bme, RE: re, LogBME: logBME}, nil
}

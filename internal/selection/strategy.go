package selection

import (
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

// ErrUnknownStrategy indicates a selection strategy name that is not registered
var ErrUnknownStrategy = errors.New("unknown selection strategy")

// Candidate is one scored prior-ensemble row of the active-learning pool
type Candidate struct {
	PoolIndex     int
	EnsembleIndex int
	Score         models.ScorePair
}

// Strategy defines how to pick the next collocation point from scored candidates
type Strategy interface {
	// SelectBest returns the position of the chosen candidate and its criterion value.
	// Ties resolve to the lowest position.
	SelectBest(candidates []Candidate) (int, float64, error)
	// Name returns the name of the selection strategy
	Name() string
}

// StrategyType names a registered selection strategy
type StrategyType string

const (
	// StrategyRE maximises the relative entropy of the exploration posterior
	StrategyRE StrategyType = "RE"
	// StrategyBME maximises the Bayesian model evidence
	StrategyBME StrategyType = "BME"
	// StrategyWeighted maximises a normalised blend of RE and BME
	StrategyWeighted StrategyType = "weighted"
)

// NewStrategy creates a strategy from its name. weight is the RE share of the weighted strategy.
func NewStrategy(name string, weight float64) (Strategy, error) {
	switch StrategyType(name) {
	case StrategyRE:
		return &REStrategy{}, nil
	case StrategyBME:
		return &BMEStrategy{}, nil
	case StrategyWeighted:
		if weight < 0 || weight > 1 {
			return nil, fmt.Errorf("weighted strategy: weight must be between 0 and 1, got %f", weight)
		}
		return &WeightedStrategy{Weight: weight}, nil
	default:
		return nil, fmt.Errorf("%w: %q (must be RE, BME, or weighted)", ErrUnknownStrategy, name)
	}
}

// REStrategy selects the candidate with the largest relative entropy
type REStrategy struct{}

func (s *REStrategy) Name() string {
	return string(StrategyRE)
}

func (s *REStrategy) SelectBest(candidates []Candidate) (int, float64, error) {
	if len(candidates) == 0 {
		return 0, 0, fmt.Errorf("no candidates provided")
	}

	best := argmax(candidates, func(c Candidate) float64 { return c.Score.RE })
	if candidates[best].Score.RE > 0 {
		return best, candidates[best].Score.RE, nil
	}

	// Every RE is zero: fall back to evidence so the choice is not simply the first row
	byBME := argmax(candidates, func(c Candidate) float64 { return c.Score.BME })
	if candidates[byBME].Score.BME > 0 {
		logger.Warn("all candidate RE scores are zero, selecting by BME",
			"candidates", len(candidates),
			"ensemble_index", candidates[byBME].EnsembleIndex)
		return byBME, candidates[byBME].Score.BME, nil
	}
	return best, 0, nil
}

// BMEStrategy selects the candidate with the largest Bayesian model evidence
type BMEStrategy struct{}

func (s *BMEStrategy) Name() string {
	return string(StrategyBME)
}

func (s *BMEStrategy) SelectBest(candidates []Candidate) (int, float64, error) {
	if len(candidates) == 0 {
		return 0, 0, fmt.Errorf("no candidates provided")
	}
	best := argmax(candidates, func(c Candidate) float64 { return c.Score.BME })
	return best, candidates[best].Score.BME, nil
}

// WeightedStrategy balances information gain and evidence.
// Each score is normalised by its maximum over the pool.
type WeightedStrategy struct {
	Weight float64
}

func (s *WeightedStrategy) Name() string {
	return string(StrategyWeighted)
}

func (s *WeightedStrategy) SelectBest(candidates []Candidate) (int, float64, error) {
	if len(candidates) == 0 {
		return 0, 0, fmt.Errorf("no candidates provided")
	}

	var maxRE, maxBME float64
	for _, c := range candidates {
		maxRE = max(maxRE, c.Score.RE)
		maxBME = max(maxBME, c.Score.BME)
	}
	combined := func(c Candidate) float64 {
		var v float64
		if maxRE > 0 {
			v += s.Weight * c.Score.RE / maxRE
		}
		if maxBME > 0 {
			v += (1 - s.Weight) * c.Score.BME / maxBME
		}
		return v
	}

	best := argmax(candidates, combined)
	return best, combined(candidates[best]), nil
}

// argmax returns the first position holding the largest value
func argmax(candidates []Candidate, value func(Candidate) float64) int {
	best := 0
	bestVal := value(candidates[0])
	for i := 1; i < len(candidates); i++ {
		if v := value(candidates[i]); v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}

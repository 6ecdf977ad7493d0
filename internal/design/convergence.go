package design

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ScoreStep is the belief score of one iteration
type ScoreStep struct {
	Iteration int
	BME       float64
	RE        float64
}

// ConvergenceStrategy inspects the RE history. Detection is diagnostic:
// the campaign always runs its full iteration budget.
type ConvergenceStrategy interface {
	// CheckConvergence reports whether the history looks converged and why
	CheckConvergence(history []ScoreStep) (bool, string)
	// Name returns the name of the convergence strategy
	Name() string
}

// ConvergenceConfig holds configuration for convergence detection
type ConvergenceConfig struct {
	// NoImprovementIterations is the number of iterations without a new RE maximum
	NoImprovementIterations int
	// ImprovementThreshold is the relative RE gain below which an iteration does not count as improvement
	ImprovementThreshold float64
	// ScoreTolerance is the absolute RE range considered flat
	ScoreTolerance float64
	// MinIterations is the minimum history length before convergence can be detected
	MinIterations int
	// PlateauIterations is the window inspected by the plateau and variance checks
	PlateauIterations int
}

// DefaultConvergenceConfig returns a default convergence configuration
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		NoImprovementIterations: 5,
		ImprovementThreshold:    0.01,
		ScoreTolerance:          0.001,
		MinIterations:           3,
		PlateauIterations:       5,
	}
}

// NoImprovementStrategy detects convergence when RE has not reached a new
// maximum for N iterations
type NoImprovementStrategy struct {
	config *ConvergenceConfig
}

// NewNoImprovementStrategy creates a new no-improvement convergence strategy
func NewNoImprovementStrategy(config *ConvergenceConfig) *NoImprovementStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &NoImprovementStrategy{config: config}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) CheckConvergence(history []ScoreStep) (bool, string) {
	if len(history) < s.config.MinIterations {
		return false, ""
	}

	best := math.Inf(-1)
	bestAt := -1
	for i, step := range history {
		if step.RE > best*(1+s.config.ImprovementThreshold) || bestAt < 0 {
			best = step.RE
			bestAt = i
		}
	}

	since := len(history) - 1 - bestAt
	if since >= s.config.NoImprovementIterations {
		return true, fmt.Sprintf("no RE improvement for %d iterations (best at iteration %d)", since, history[bestAt].Iteration+1)
	}
	return false, ""
}

// PlateauStrategy detects convergence when recent RE values lie within a tolerance
type PlateauStrategy struct {
	config *ConvergenceConfig
}

// NewPlateauStrategy creates a new plateau convergence strategy
func NewPlateauStrategy(config *ConvergenceConfig) *PlateauStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &PlateauStrategy{config: config}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(history []ScoreStep) (bool, string) {
	if len(history) < s.config.MinIterations || len(history) < s.config.PlateauIterations {
		return false, ""
	}

	recent := history[len(history)-s.config.PlateauIterations:]
	lo, hi := recent[0].RE, recent[0].RE
	for _, step := range recent {
		lo = math.Min(lo, step.RE)
		hi = math.Max(hi, step.RE)
	}
	if hi-lo <= s.config.ScoreTolerance {
		return true, fmt.Sprintf("RE plateaued for %d iterations (range: %.6f)", s.config.PlateauIterations, hi-lo)
	}
	return false, ""
}

// VarianceStrategy detects convergence when the relative spread of recent RE values is small
type VarianceStrategy struct {
	config *ConvergenceConfig
}

// NewVarianceStrategy creates a new variance-based convergence strategy
func NewVarianceStrategy(config *ConvergenceConfig) *VarianceStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &VarianceStrategy{config: config}
}

func (s *VarianceStrategy) Name() string {
	return "variance"
}

func (s *VarianceStrategy) CheckConvergence(history []ScoreStep) (bool, string) {
	if len(history) < s.config.MinIterations {
		return false, ""
	}

	window := min(s.config.PlateauIterations, len(history))
	if window < 2 {
		return false, ""
	}
	recent := make([]float64, window)
	for i, step := range history[len(history)-window:] {
		recent[i] = step.RE
	}

	mean, std := stat.PopMeanStdDev(recent, nil)
	if mean > 0 {
		if rel := std / mean; rel < s.config.ImprovementThreshold {
			return true, fmt.Sprintf("low RE variance (relative stddev: %.4f%%)", rel*100)
		}
	}
	return false, ""
}

// CombinedStrategy reports convergence when any of its strategies does
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

// NewCombinedStrategy creates a combined strategy of no-improvement, plateau and variance checks
func NewCombinedStrategy(config *ConvergenceConfig) *CombinedStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &CombinedStrategy{
		strategies: []ConvergenceStrategy{
			NewNoImprovementStrategy(config),
			NewPlateauStrategy(config),
			NewVarianceStrategy(config),
		},
	}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) CheckConvergence(history []ScoreStep) (bool, string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.CheckConvergence(history); converged {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}

// AddStrategy adds a custom strategy to the combined strategy
func (s *CombinedStrategy) AddStrategy(strategy ConvergenceStrategy) {
	s.strategies = append(s.strategies, strategy)
}

// ConvergenceDiagnostic is what the monitor observed over a campaign
type ConvergenceDiagnostic struct {
	Converged bool
	// FirstIteration is the zero-based iteration at which convergence was first reported, or -1
	FirstIteration int
	Reason         string
}

// ConvergenceMonitor tracks the score history and remembers the first
// iteration at which its strategy reported convergence
type ConvergenceMonitor struct {
	strategy   ConvergenceStrategy
	history    []ScoreStep
	diagnostic ConvergenceDiagnostic
}

// NewConvergenceMonitor creates a monitor; a nil strategy uses the combined default
func NewConvergenceMonitor(strategy ConvergenceStrategy) *ConvergenceMonitor {
	if strategy == nil {
		strategy = NewCombinedStrategy(nil)
	}
	return &ConvergenceMonitor{strategy: strategy, diagnostic: ConvergenceDiagnostic{FirstIteration: -1}}
}

// Observe adds one iteration's scores and reports the current verdict
func (m *ConvergenceMonitor) Observe(step ScoreStep) (bool, string) {
	m.history = append(m.history, step)
	converged, reason := m.strategy.CheckConvergence(m.history)
	if converged && !m.diagnostic.Converged {
		m.diagnostic = ConvergenceDiagnostic{Converged: true, FirstIteration: step.Iteration, Reason: reason}
	}
	return converged, reason
}

// Diagnostic returns the first convergence report, if any
func (m *ConvergenceMonitor) Diagnostic() ConvergenceDiagnostic {
	return m.diagnostic
}

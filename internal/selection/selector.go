package selection

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/scoring"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

// ErrEmptyCandidatePool indicates that every row in the active-learning window is
// already a collocation point; d_size is too small for the iteration budget.
var ErrEmptyCandidatePool = errors.New("active-learning candidate pool is empty")

// Config controls candidate exploration
type Config struct {
	// DSize is the number of leading ensemble rows open to selection at iteration 0;
	// the window grows by one row per iteration.
	DSize int
	// ExplorationSize is the number of output samples drawn per candidate
	ExplorationSize int
	// Workers bounds concurrent candidate scoring; 0 means GOMAXPROCS
	Workers int
}

// Request carries the state of one iteration
type Request struct {
	Iteration    int
	Ensemble     *models.PriorEnsemble
	Snapshot     *models.CollocationSnapshot
	Mean         mat.Matrix // M×S surrogate mean over the ensemble
	Std          mat.Matrix // M×S surrogate standard deviation
	Observations models.ObservationVector
	ErrorModel   models.ErrorModel
	// Rand seeds the exploration; each candidate derives its own stream from it
	Rand *utils.RandSource
}

// Selection is the outcome of one active-learning step
type Selection struct {
	PoolIndex     int
	EnsembleIndex int
	Criterion     float64
	Score         models.ScorePair
	Candidates    []Candidate
	Degenerate    int
}

// Params returns the chosen parameter vector
func (s *Selection) Params(ens *models.PriorEnsemble) models.ParameterVector {
	return ens.Row(s.EnsembleIndex)
}

// Selector scores untested prior-ensemble rows by simulated information gain
type Selector struct {
	config   Config
	strategy Strategy
}

// NewSelector creates a selector
func NewSelector(config Config, strategy Strategy) (*Selector, error) {
	if config.DSize <= 0 {
		return nil, fmt.Errorf("d_size must be positive, got %d", config.DSize)
	}
	if config.ExplorationSize <= 0 {
		return nil, fmt.Errorf("exploration_size must be positive, got %d", config.ExplorationSize)
	}
	if strategy == nil {
		return nil, fmt.Errorf("selection strategy is required")
	}
	return &Selector{config: config, strategy: strategy}, nil
}

// Strategy returns the configured strategy
func (s *Selector) Strategy() Strategy {
	return s.strategy
}

// CandidatePool returns the ensemble indices open to selection: the first
// min(DSize+iteration, S) rows that are not already collocation points.
// Rows are excluded by recorded ensemble index and, for points that did not
// come from this ensemble, by exact equality.
func (s *Selector) CandidatePool(iteration int, ens *models.PriorEnsemble, snap *models.CollocationSnapshot) ([]int, error) {
	limit := min(s.config.DSize+iteration, ens.Size())
	consumed := snap.ConsumedIndices()

	open := make([]int, 0, limit)
	for i := 0; i < limit; i++ {
		if consumed[i] || snap.ContainsRow(ens.RawRow(i)) {
			continue
		}
		open = append(open, i)
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: all %d rows in the window are collocation points", ErrEmptyCandidatePool, limit)
	}
	return open, nil
}

// SelectNext scores every candidate by sampling its predictive output
// distribution and picks the best one with the configured strategy.
func (s *Selector) SelectNext(ctx context.Context, req Request) (*Selection, error) {
	candidates, err := s.Explore(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Choose(candidates)
}

// Explore scores every candidate of the pool. Candidates are scored
// concurrently; each draws from its own stream derived from req.Rand and its
// ensemble index, so the scores do not depend on the worker count.
func (s *Selector) Explore(ctx context.Context, req Request) ([]Candidate, error) {
	if req.Ensemble == nil || req.Snapshot == nil || req.Mean == nil || req.Std == nil {
		return nil, fmt.Errorf("selection request is incomplete")
	}
	mOut, size := req.Mean.Dims()
	if r, c := req.Std.Dims(); r != mOut || c != size {
		return nil, fmt.Errorf("%w: mean is %dx%d, std is %dx%d", models.ErrDimensionMismatch, mOut, size, r, c)
	}
	if size != req.Ensemble.Size() {
		return nil, fmt.Errorf("%w: predictions cover %d rows, ensemble has %d", models.ErrDimensionMismatch, size, req.Ensemble.Size())
	}
	lik, err := scoring.NewLikelihood(req.Observations, req.ErrorModel)
	if err != nil {
		return nil, err
	}
	if lik.Outputs() != mOut {
		return nil, fmt.Errorf("%w: predictions have %d outputs, observations %d", models.ErrDimensionMismatch, mOut, lik.Outputs())
	}

	indices, err := s.CandidatePool(req.Iteration, req.Ensemble, req.Snapshot)
	if err != nil {
		return nil, err
	}

	rng := req.Rand
	if rng == nil {
		rng = utils.NewRandSource(1)
	}

	candidates := make([]Candidate, len(indices))
	p := pool.New().WithMaxGoroutines(workers(s.config.Workers)).WithContext(ctx).WithFirstError()
	for pos, idx := range indices {
		child := rng.Derive(uint64(idx))
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			score, err := s.explore(lik, req.Mean, req.Std, idx, child)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", idx, err)
			}
			candidates[pos] = Candidate{PoolIndex: pos, EnsembleIndex: idx, Score: score}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// Choose applies the strategy to scored candidates
func (s *Selector) Choose(candidates []Candidate) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidatePool
	}
	best, criterion, err := s.strategy.SelectBest(candidates)
	if err != nil {
		return nil, fmt.Errorf("%s strategy: %w", s.strategy.Name(), err)
	}

	degenerate := 0
	for _, c := range candidates {
		if c.Score.Degenerate {
			degenerate++
		}
	}

	return &Selection{
		PoolIndex:     best,
		EnsembleIndex: candidates[best].EnsembleIndex,
		Criterion:     criterion,
		Score:         candidates[best].Score,
		Candidates:    candidates,
		Degenerate:    degenerate,
	}, nil
}

// explore draws ExplorationSize output vectors around the surrogate prediction
// of one ensemble row and scores them against the observations
func (s *Selector) explore(lik *scoring.Likelihood, mean, std mat.Matrix, idx int, rng *utils.RandSource) (models.ScorePair, error) {
	mOut, _ := mean.Dims()
	mu := mat.Col(nil, idx, mean)
	sd := mat.Col(nil, idx, std)

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng.Source()}
	sample := make([]float64, mOut)
	logL := make([]float64, s.config.ExplorationSize)
	for r := range logL {
		for m := range sample {
			sample[m] = mu[m] + sd[m]*normal.Rand()
		}
		logL[r] = lik.LogLikelihood(sample)
	}
	return scoring.ScoreLogLikelihoods(logL)
}

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

package design

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/scoring"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/selection"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/surrogate"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

// Stream keys for the per-iteration random streams
const (
	fitStream uint64 = iota + 1
	selectStream
)

// Simulator runs the expensive model for one parameter vector
type Simulator interface {
	Evaluate(ctx context.Context, params models.ParameterVector, runLabel string) (models.ObservationVector, error)
}

// Recorder persists campaign progress
type Recorder interface {
	// RecordPoint is called once per appended collocation point
	RecordPoint(point models.CollocationPoint) error
	// RecordScores receives the full score history after every iteration
	RecordScores(bme, re []float64) error
}

// ProgressReporter is called after each completed iteration with the belief score
type ProgressReporter func(iteration int, score models.ScorePair)

// Config controls the design loop
type Config struct {
	IterationLimit int
	Surrogate      surrogate.Config
	// SurrogateWorkers bounds concurrent GP fits and predictions; 0 means GOMAXPROCS
	SurrogateWorkers int
	RunPrefix        string
}

// IterationRecord describes one completed iteration
type IterationRecord struct {
	Iteration     int
	Label         string
	EnsembleIndex int
	Params        models.ParameterVector
	Output        models.ObservationVector
	// Score is the belief score of the surrogate before the new point was added
	Score          models.ScorePair
	ErrorModel     models.ErrorModel
	Criterion      float64
	CandidateScore models.ScorePair
	PoolSize       int
	Degenerate     int

	FitDuration        time.Duration
	SelectionDuration  time.Duration
	EvaluationDuration time.Duration
}

// Result is the outcome of a campaign
type Result struct {
	Snapshot    *models.CollocationSnapshot
	BME         []float64
	RE          []float64
	Iterations  []IterationRecord
	Ensemble    *surrogate.Ensemble
	Convergence ConvergenceDiagnostic
	Duration    time.Duration
}

// Loop drives the sequential design: fit, score, explore, select, evaluate, append
type Loop struct {
	config      Config
	ensemble    *models.PriorEnsemble
	selector    *selection.Selector
	simulator   Simulator
	obs         models.ObservationVector
	rng         *utils.RandSource
	errorSource ErrorModelSource
	measurement models.ErrorModel
	recorder    Recorder
	collector   *metrics.Collector
	progress    ProgressReporter
	monitor     *ConvergenceMonitor

	mu    sync.RWMutex
	state State
}

// NewLoop creates a design loop. The error model defaults to the surrogate's
// leave-one-out error without measurement variance.
func NewLoop(config Config, ensemble *models.PriorEnsemble, selector *selection.Selector, simulator Simulator, obs models.ObservationVector, rng *utils.RandSource) (*Loop, error) {
	if config.IterationLimit < 0 {
		return nil, fmt.Errorf("iteration limit must be non-negative, got %d", config.IterationLimit)
	}
	if ensemble == nil {
		return nil, fmt.Errorf("prior ensemble is required")
	}
	if selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if simulator == nil {
		return nil, fmt.Errorf("simulator is required")
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("observations are required")
	}
	if rng == nil {
		rng = utils.NewRandSource(1)
	}
	return &Loop{
		config:      config,
		ensemble:    ensemble,
		selector:    selector,
		simulator:   simulator,
		obs:         obs.Clone(),
		rng:         rng,
		errorSource: LOOCVSource{},
		monitor:     NewConvergenceMonitor(nil),
		state:       StateInitialized,
	}, nil
}

// WithErrorModel sets the error-model source and the measurement variance added to it
func (l *Loop) WithErrorModel(source ErrorModelSource, measurement models.ErrorModel) *Loop {
	l.errorSource = source
	l.measurement = measurement
	return l
}

// WithRecorder sets the campaign recorder
func (l *Loop) WithRecorder(recorder Recorder) *Loop {
	l.recorder = recorder
	return l
}

// WithMetrics sets the metrics collector
func (l *Loop) WithMetrics(collector *metrics.Collector) *Loop {
	l.collector = collector
	return l
}

// WithProgressReporter sets a callback invoked after every iteration
func (l *Loop) WithProgressReporter(progress ProgressReporter) *Loop {
	l.progress = progress
	return l
}

// WithConvergence sets the convergence strategy used for diagnostics
func (l *Loop) WithConvergence(strategy ConvergenceStrategy) *Loop {
	l.monitor = NewConvergenceMonitor(strategy)
	return l
}

// State returns the current state of the loop
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run executes IterationLimit iterations on set, which grows by one point per
// iteration. The set is never modified on failure beyond the points already
// appended by completed iterations.
func (l *Loop) Run(ctx context.Context, set *models.CollocationSet) (*Result, error) {
	start := time.Now()
	if err := l.validate(set); err != nil {
		l.setState(StateFailed)
		return nil, stageErr(-1, StateInitialized, err)
	}
	if l.collector != nil {
		l.collector.Start()
		defer l.collector.Stop()
	}

	logger.Info("starting calibration campaign",
		"collocation_points", set.Len(),
		"parameters", set.Dims(),
		"outputs", set.Outputs(),
		"ensemble_size", l.ensemble.Size(),
		"iterations", l.config.IterationLimit,
		"strategy", l.selector.Strategy().Name())

	result := &Result{
		BME:        make([]float64, 0, l.config.IterationLimit),
		RE:         make([]float64, 0, l.config.IterationLimit),
		Iterations: make([]IterationRecord, 0, l.config.IterationLimit),
	}

	for iter := 0; iter < l.config.IterationLimit; iter++ {
		if err := ctx.Err(); err != nil {
			l.setState(StateFailed)
			return nil, stageErr(iter, l.State(), err)
		}
		rec, err := l.iterate(ctx, iter, set)
		if err != nil {
			l.setState(StateFailed)
			return nil, err
		}

		result.BME = append(result.BME, rec.Score.BME)
		result.RE = append(result.RE, rec.Score.RE)
		result.Iterations = append(result.Iterations, *rec)

		if l.recorder != nil {
			if err := l.recorder.RecordScores(result.BME, result.RE); err != nil {
				l.setState(StateFailed)
				return nil, stageErr(iter, StateAppending, fmt.Errorf("record scores: %w", err))
			}
		}
		l.observe(rec)
	}

	// Final surrogate over the complete set
	l.setState(StateFitting)
	snap := set.Snapshot()
	ens, err := surrogate.FitEnsemble(ctx, snap, l.config.Surrogate, l.rng.Derive(fitStream, uint64(l.config.IterationLimit)), l.config.SurrogateWorkers)
	if err != nil {
		l.setState(StateFailed)
		return nil, stageErr(-1, StateFitting, err)
	}

	l.setState(StateDone)
	result.Snapshot = snap
	result.Ensemble = ens
	result.Convergence = l.monitor.Diagnostic()
	result.Duration = time.Since(start)

	logger.Info("calibration campaign completed",
		"collocation_points", snap.Len(),
		"duration", utils.FormatDuration(result.Duration),
		"converged", result.Convergence.Converged)
	return result, nil
}

func (l *Loop) validate(set *models.CollocationSet) error {
	if set == nil {
		return fmt.Errorf("collocation set is required")
	}
	if set.Len() < surrogate.MinPoints {
		return &surrogate.InsufficientDataError{Points: set.Len(), Needed: surrogate.MinPoints}
	}
	if set.Dims() != l.ensemble.Dims() {
		return fmt.Errorf("%w: collocation points have %d parameters, ensemble %d", models.ErrDimensionMismatch, set.Dims(), l.ensemble.Dims())
	}
	if set.Outputs() != len(l.obs) {
		return fmt.Errorf("%w: collocation outputs have %d values, observations %d", models.ErrDimensionMismatch, set.Outputs(), len(l.obs))
	}
	if l.measurement != nil && len(l.measurement) != len(l.obs) {
		return fmt.Errorf("%w: measurement variance has %d entries, observations %d", models.ErrDimensionMismatch, len(l.measurement), len(l.obs))
	}
	return nil
}

func (l *Loop) iterate(ctx context.Context, iter int, set *models.CollocationSet) (*IterationRecord, error) {
	snap := set.Snapshot()
	rec := &IterationRecord{Iteration: iter}

	// FITTING
	l.setState(StateFitting)
	fitStart := time.Now()
	ens, err := surrogate.FitEnsemble(ctx, snap, l.config.Surrogate, l.rng.Derive(fitStream, uint64(iter)), l.config.SurrogateWorkers)
	if err != nil {
		return nil, stageErr(iter, StateFitting, err)
	}
	mean, std, err := ens.Predict(ctx, l.ensemble.Matrix(), l.config.SurrogateWorkers)
	if err != nil {
		return nil, stageErr(iter, StateFitting, err)
	}
	rec.FitDuration = time.Since(fitStart)
	logger.ForIteration(iter, string(StateFitting)).Debug("surrogate fitted",
		"points", snap.Len(),
		"duration", utils.FormatDuration(rec.FitDuration))

	// SCORING
	l.setState(StateScoring)
	em, err := combineErrorModel(ctx, l.errorSource, l.measurement, ens, len(l.obs))
	if err != nil {
		return nil, stageErr(iter, StateScoring, err)
	}
	rec.ErrorModel = em
	score, err := scoring.Score(mean.T(), l.obs, em)
	if err != nil {
		return nil, stageErr(iter, StateScoring, err)
	}
	rec.Score = score
	log := logger.ForIteration(iter, string(StateScoring))
	if score.Degenerate {
		log.Warn("belief score is degenerate", "error", &scoring.DegenerateScoreError{LogBME: score.LogBME})
	}
	log.Info("belief scored", "bme", score.BME, "re", score.RE, "log_bme", score.LogBME)

	// EXPLORING
	l.setState(StateExploring)
	selStart := time.Now()
	candidates, err := l.selector.Explore(ctx, selection.Request{
		Iteration:    iter,
		Ensemble:     l.ensemble,
		Snapshot:     snap,
		Mean:         mean,
		Std:          std,
		Observations: l.obs,
		ErrorModel:   em,
		Rand:         l.rng.Derive(selectStream, uint64(iter)),
	})
	if err != nil {
		return nil, stageErr(iter, StateExploring, err)
	}

	// SELECTING
	l.setState(StateSelecting)
	sel, err := l.selector.Choose(candidates)
	if err != nil {
		return nil, stageErr(iter, StateSelecting, err)
	}
	rec.SelectionDuration = time.Since(selStart)
	rec.EnsembleIndex = sel.EnsembleIndex
	rec.Criterion = sel.Criterion
	rec.CandidateScore = sel.Score
	rec.PoolSize = len(sel.Candidates)
	rec.Degenerate = sel.Degenerate
	rec.Params = sel.Params(l.ensemble)

	log = logger.ForIteration(iter, string(StateSelecting))
	if sel.Degenerate > 0 {
		log.Warn("degenerate candidate scores", "count", sel.Degenerate, "pool_size", rec.PoolSize)
	}
	log.Info("candidate selected",
		"ensemble_index", sel.EnsembleIndex,
		"criterion", sel.Criterion,
		"pool_size", rec.PoolSize,
		"params", rec.Params.Values())

	// EVALUATING
	l.setState(StateEvaluating)
	rec.Label = utils.RunLabel(l.config.RunPrefix, set.Len()+1)
	evalStart := time.Now()
	out, err := l.simulator.Evaluate(ctx, rec.Params, rec.Label)
	rec.EvaluationDuration = time.Since(evalStart)
	if err != nil {
		return nil, stageErr(iter, StateEvaluating, err)
	}
	if len(out) != len(l.obs) {
		return nil, stageErr(iter, StateEvaluating,
			fmt.Errorf("%w: run %s returned %d outputs, want %d", models.ErrDimensionMismatch, rec.Label, len(out), len(l.obs)))
	}
	rec.Output = out.Clone()

	// APPENDING
	l.setState(StateAppending)
	point := models.CollocationPoint{
		Label:         rec.Label,
		EnsembleIndex: sel.EnsembleIndex,
		Params:        rec.Params,
		Output:        out,
	}
	if err := set.Append(point); err != nil {
		return nil, stageErr(iter, StateAppending, err)
	}
	if l.recorder != nil {
		if err := l.recorder.RecordPoint(point); err != nil {
			return nil, stageErr(iter, StateAppending, fmt.Errorf("record %s: %w", rec.Label, err))
		}
	}
	logger.ForIteration(iter, string(StateAppending)).Info("collocation point added",
		"label", rec.Label,
		"collocation_points", set.Len(),
		"evaluation", utils.FormatDuration(rec.EvaluationDuration))

	l.recordMetrics(rec)
	return rec, nil
}

func (l *Loop) recordMetrics(rec *IterationRecord) {
	if l.collector == nil {
		return
	}
	metrics.RecordScores(l.collector, rec.Iteration, rec.Score.BME, rec.Score.RE)
	metrics.RecordDuration(l.collector, metrics.MetricFitSeconds, rec.Iteration, rec.FitDuration)
	metrics.RecordDuration(l.collector, metrics.MetricSelectionSeconds, rec.Iteration, rec.SelectionDuration)
	metrics.RecordDuration(l.collector, metrics.MetricEvaluationSeconds, rec.Iteration, rec.EvaluationDuration)
	metrics.RecordPoolSize(l.collector, rec.Iteration, rec.PoolSize)
	metrics.RecordPerOutput(l.collector, metrics.MetricErrorVariance, rec.Iteration, rec.ErrorModel)
}

func (l *Loop) observe(rec *IterationRecord) {
	if converged, reason := l.monitor.Observe(ScoreStep{Iteration: rec.Iteration, BME: rec.Score.BME, RE: rec.Score.RE}); converged {
		logger.ForIteration(rec.Iteration, string(StateDone)).Info("score history looks converged", "reason", reason)
	}
	if l.progress != nil {
		l.progress(rec.Iteration, rec.Score)
	}
}

// IsStage reports whether err is a StageError raised at the given stage
func IsStage(err error, stage State) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stage
}

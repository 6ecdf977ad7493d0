package main

import (
	"fmt"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/campaign"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/design"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/selection"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/simulator"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/surrogate"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

// ensembleStream keys the prior-ensemble draw; the loop derives its own streams
const ensembleStream uint64 = 0

// calibration is everything a campaign run needs, built from the config file
type calibration struct {
	loop      *design.Loop
	set       *models.CollocationSet
	collector *metrics.Collector
	names     []string
}

func setup(cfg *config.Config) (*calibration, error) {
	if cfg.Simulator == nil {
		return nil, fmt.Errorf("config has no simulator section")
	}
	sim := cfg.Simulator
	rng := utils.NewRandSource(cfg.Seed)

	obs, locs, err := campaign.LoadObservations(cfg.Observations.File, cfg.Observations.ValueColumns)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	logger.Info("observations loaded", "file", cfg.Observations.File, "locations", len(locs), "outputs", len(obs))

	ens, err := campaign.PriorEnsemble(cfg.Prior.EnsembleFile, cfg.ParameterRanges(), cfg.Prior.SampleSize, rng.Derive(ensembleStream))
	if err != nil {
		return nil, fmt.Errorf("prior ensemble: %w", err)
	}

	set, err := campaign.LoadCollocationSet(cfg.Paths.Results, sim.Variable, cfg.Observations.ValueColumns, ens)
	if err != nil {
		return nil, fmt.Errorf("load collocation points: %w", err)
	}
	logger.Info("collocation points loaded", "dir", cfg.Paths.Results, "points", set.Len(),
		"from_ensemble", len(set.Snapshot().ConsumedIndices()))

	strategy, err := selection.NewStrategy(cfg.ActiveLearning.Strategy, cfg.ActiveLearning.Weight)
	if err != nil {
		return nil, err
	}
	selector, err := selection.NewSelector(selection.Config{
		DSize:           cfg.ActiveLearning.DSize,
		ExplorationSize: cfg.ActiveLearning.ExplorationSize,
		Workers:         cfg.ActiveLearning.Workers,
	}, strategy)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(cfg.Parameters))
	for i, p := range cfg.Parameters {
		names[i] = p.Name
	}
	process, err := simulator.NewProcess(*sim, names, locs, cfg.Paths.Simulations)
	if err != nil {
		return nil, err
	}
	if process.Outputs() != len(obs) {
		return nil, fmt.Errorf("%w: simulator produces %d outputs, observations have %d",
			models.ErrDimensionMismatch, process.Outputs(), len(obs))
	}

	recorder, err := campaign.NewRecorder(cfg.Paths.Results, sim.Variable, locs)
	if err != nil {
		return nil, err
	}

	source, err := errorModelSource(cfg.ErrorModel)
	if err != nil {
		return nil, err
	}

	loop, err := design.NewLoop(design.Config{
		IterationLimit:   cfg.IterationLimit,
		Surrogate:        surrogateConfig(cfg),
		SurrogateWorkers: cfg.Surrogate.Workers,
		RunPrefix:        sim.RunPrefix,
	}, ens, selector, process, obs, rng)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	loop.WithErrorModel(source, design.MeasurementVariance(len(obs), cfg.ErrorModel.MeasurementVariance)).
		WithRecorder(recorder).
		WithMetrics(collector)

	return &calibration{loop: loop, set: set, collector: collector, names: names}, nil
}

func surrogateConfig(cfg *config.Config) surrogate.Config {
	bounds := make([]surrogate.Bounds, len(cfg.Parameters))
	initial := make([]float64, len(cfg.Parameters))
	for i, p := range cfg.Parameters {
		lo, hi := p.LengthScaleBoundsOrDefault()
		bounds[i] = surrogate.Bounds{Lo: lo, Hi: hi}
		initial[i] = p.InitialLengthScaleOrDefault()
	}
	gp := surrogate.DefaultConfig(bounds)
	gp.InitialLengthScales = initial
	gp.Nugget = cfg.Surrogate.Nugget
	gp.Restarts = cfg.Surrogate.Restarts
	return gp
}

func errorModelSource(cfg config.ErrorModelConfig) (design.ErrorModelSource, error) {
	switch cfg.Source {
	case "loocv":
		return design.LOOCVSource{}, nil
	case "file":
		return campaign.ErrorFile{Path: cfg.File}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown error model source %q", cfg.Source)
	}
}

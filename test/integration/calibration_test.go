//go:build integration
// +build integration

package integration_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/campaign"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/design"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/selection"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/simulator"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/surrogate"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

const linearCampaignYAML = `
seed: 11
iteration_limit: 3
parameters:
  - {name: p, min: 0, max: 10}
prior:
  sample_size: 500
surrogate:
  restarts: 3
active_learning:
  d_size: 50
  exploration_size: 2000
  strategy: RE
error_model:
  source: none
  measurement_variance: 0.01
observations:
  file: calibration_points.csv
`

func linearModel(_ context.Context, p []float64) ([]float64, error) {
	return []float64{2*p[0] + 1}, nil
}

func buildLinearLoop(t *testing.T, cfg *config.Config, obs models.ObservationVector) *design.Loop {
	t.Helper()
	rng := utils.NewRandSource(cfg.Seed)
	ens, err := models.SamplePriorEnsemble(cfg.ParameterRanges(), cfg.Prior.SampleSize, rng.Derive(0).Source())
	if err != nil {
		t.Fatalf("SamplePriorEnsemble failed: %v", err)
	}
	strategy, err := selection.NewStrategy(cfg.ActiveLearning.Strategy, cfg.ActiveLearning.Weight)
	if err != nil {
		t.Fatalf("NewStrategy failed: %v", err)
	}
	selector, err := selection.NewSelector(selection.Config{
		DSize:           cfg.ActiveLearning.DSize,
		ExplorationSize: cfg.ActiveLearning.ExplorationSize,
	}, strategy)
	if err != nil {
		t.Fatalf("NewSelector failed: %v", err)
	}

	p := cfg.Parameters[0]
	lo, hi := p.LengthScaleBoundsOrDefault()
	gp := surrogate.DefaultConfig([]surrogate.Bounds{{Lo: lo, Hi: hi}})
	gp.Restarts = cfg.Surrogate.Restarts
	gp.Nugget = cfg.Surrogate.Nugget

	loop, err := design.NewLoop(design.Config{IterationLimit: cfg.IterationLimit, Surrogate: gp},
		ens, selector, simulator.Func(linearModel), obs, rng)
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	return loop.WithErrorModel(nil, design.MeasurementVariance(len(obs), cfg.ErrorModel.MeasurementVariance))
}

func initialLinearSet(t *testing.T) *models.CollocationSet {
	t.Helper()
	set := models.NewCollocationSet(1, 1)
	for i, p := range []float64{0.1, 5.0, 9.9} {
		err := set.Append(models.CollocationPoint{
			Label:         utils.RunLabel("", i+1),
			EnsembleIndex: -1,
			Params:        models.NewParameterVector([]float64{p}),
			Output:        models.ObservationVector{2*p + 1},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return set
}

// TestLinearCalibration runs the full design loop on a cheap linear model
func TestLinearCalibration(t *testing.T) {
	cfg, err := config.ParseConfigYAMLString(linearCampaignYAML)
	if err != nil {
		t.Fatalf("ParseConfigYAMLString failed: %v", err)
	}
	collector := metrics.NewCollector()
	loop := buildLinearLoop(t, cfg, models.ObservationVector{11}).WithMetrics(collector)
	set := initialLinearSet(t)

	result, err := loop.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if set.Len() != 6 {
		t.Fatalf("expected 6 collocation points, got %d", set.Len())
	}
	if len(result.RE) != 3 || len(result.BME) != 3 {
		t.Fatalf("expected 3 scores each, got %d RE and %d BME", len(result.RE), len(result.BME))
	}
	for i, re := range result.RE {
		if math.IsNaN(re) || math.IsInf(re, 0) || re < 0 {
			t.Errorf("iteration %d: RE %f should be finite and non-negative", i, re)
		}
		if !(result.BME[i] >= 0) || math.IsInf(result.BME[i], 0) {
			t.Errorf("iteration %d: BME %g should be finite and non-negative", i, result.BME[i])
		}
	}

	mean, _, err := result.Ensemble.Predict(context.Background(), mat.NewDense(1, 1, []float64{5.0}), 1)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got := mean.At(0, 0); math.Abs(got-11) > 0.1 {
		t.Errorf("expected prediction at 5.0 within 0.1 of 11, got %f", got)
	}

	if agg := collector.Aggregate(metrics.MetricPoolSize, nil); agg == nil || agg.Count != 3 {
		t.Errorf("expected pool size recorded for 3 iterations, got %+v", agg)
	}
}

// TestCampaignFilesResume records a campaign to disk and resumes it from the files
func TestCampaignFilesResume(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.ParseConfigYAMLString(linearCampaignYAML)
	if err != nil {
		t.Fatalf("ParseConfigYAMLString failed: %v", err)
	}
	cfg.IterationLimit = 2

	obsPath := filepath.Join(dir, "calibration_points.csv")
	if err := os.WriteFile(obsPath, []byte("x,y,value\n0.0,0.0,11.0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	obs, locs, err := campaign.LoadObservations(obsPath, []int{2})
	if err != nil {
		t.Fatalf("LoadObservations failed: %v", err)
	}

	results := filepath.Join(dir, "results")
	rec, err := campaign.NewRecorder(results, "VALUE", locs)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	initial := initialLinearSet(t).Snapshot()
	for i := 0; i < initial.Len(); i++ {
		if err := rec.RecordPoint(initial.Point(i)); err != nil {
			t.Fatalf("RecordPoint failed: %v", err)
		}
	}

	set, err := campaign.LoadCollocationSet(results, "VALUE", []int{2}, nil)
	if err != nil {
		t.Fatalf("LoadCollocationSet failed: %v", err)
	}
	if _, err := buildLinearLoop(t, cfg, obs).WithRecorder(rec).Run(context.Background(), set); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	log, err := os.ReadFile(filepath.Join(results, campaign.ParameterLogName))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(string(log), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[4], "PC5; ") {
		t.Errorf("expected 5 parameter lines ending with PC5, got %q", lines)
	}

	// resuming picks up all five points
	resumed, err := campaign.LoadCollocationSet(results, "VALUE", []int{2}, nil)
	if err != nil {
		t.Fatalf("LoadCollocationSet failed: %v", err)
	}
	if resumed.Len() != 5 {
		t.Errorf("expected 5 points after resume, got %d", resumed.Len())
	}
	re, err := os.ReadFile(filepath.Join(results, campaign.REFileName))
	if err != nil {
		t.Fatalf("RE history missing: %v", err)
	}
	if n := strings.Count(string(re), "\n"); n != 2 {
		t.Errorf("expected 2 RE lines, got %d", n)
	}
}

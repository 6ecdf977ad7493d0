package surrogate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

func linearData() (*mat.Dense, []float64) {
	xs := []float64{0, 2.5, 5, 7.5, 10}
	y := make([]float64, len(xs))
	for i, v := range xs {
		y[i] = 2*v + 1
	}
	return mat.NewDense(len(xs), 1, xs), y
}

func TestFitInterpolatesTrainingPoints(t *testing.T) {
	x, y := linearData()
	gp, err := Fit(x, y, DefaultConfig([]Bounds{{0.1, 10}}), utils.NewRandSource(42))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	mean, std, err := gp.Predict(x)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	for i := range y {
		if math.Abs(mean[i]-y[i]) > 0.05 {
			t.Errorf("point %d: mean %f, want %f", i, mean[i], y[i])
		}
		if std[i] < 0 || math.IsNaN(std[i]) {
			t.Errorf("point %d: invalid std %f", i, std[i])
		}
	}

	far := mat.NewDense(1, 1, []float64{40})
	_, farStd, err := gp.Predict(far)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if farStd[0] <= std[2] {
		t.Errorf("std far from data (%f) should exceed std at a training point (%f)", farStd[0], std[2])
	}

	mid := mat.NewDense(1, 1, []float64{3.75})
	midMean, _, _ := gp.Predict(mid)
	if math.Abs(midMean[0]-8.5) > 0.25 {
		t.Errorf("mean between points %f, want about 8.5", midMean[0])
	}
}

func TestFitRespectsLengthScaleBounds(t *testing.T) {
	x, y := linearData()
	gp, err := Fit(x, y, DefaultConfig([]Bounds{{1, 3}}), utils.NewRandSource(3))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	l := gp.Kernel().LengthScales[0]
	if l < 1-1e-9 || l > 3+1e-9 {
		t.Errorf("length-scale %f outside bounds [1, 3]", l)
	}
	if a := gp.Kernel().Amplitude; a < minAmplitude || a > maxAmplitude {
		t.Errorf("amplitude %g outside bounds", a)
	}
}

func TestFitDeterministic(t *testing.T) {
	x, y := linearData()
	cfg := DefaultConfig([]Bounds{{0.1, 10}})

	a, err := Fit(x, y, cfg, utils.NewRandSource(7))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	b, err := Fit(x, y, cfg, utils.NewRandSource(7))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if diff := cmp.Diff(a.Kernel(), b.Kernel()); diff != "" {
		t.Errorf("same seed gave different kernels (-a +b):\n%s", diff)
	}
}

func TestFitErrors(t *testing.T) {
	one := mat.NewDense(1, 1, []float64{1})
	_, err := Fit(one, []float64{3}, DefaultConfig([]Bounds{{0.1, 10}}), nil)
	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Points != 1 {
		t.Errorf("expected 1 point in error, got %d", ide.Points)
	}

	x, y := linearData()
	if _, err := Fit(x, y[:3], DefaultConfig([]Bounds{{0.1, 10}}), nil); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for value count, got %v", err)
	}
	if _, err := Fit(x, y, DefaultConfig([]Bounds{{0.1, 10}, {0.1, 10}}), nil); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for bounds, got %v", err)
	}
	if _, err := Fit(x, y, DefaultConfig([]Bounds{{0, 10}}), nil); err == nil {
		t.Error("expected error for zero lower bound")
	}
}

func TestFitEveryStartFails(t *testing.T) {
	// a non-finite input poisons the covariance, so no start can factorise it
	x := mat.NewDense(3, 1, []float64{1, math.NaN(), 3})
	cfg := DefaultConfig([]Bounds{{0.1, 10}})
	cfg.Restarts = 3

	_, err := Fit(x, []float64{1, 2, 3}, cfg, utils.NewRandSource(5))
	var oe *OptimizationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OptimizationError, got %v", err)
	}
	if oe.Attempts != cfg.Restarts+1 {
		t.Errorf("expected %d attempts, got %d", cfg.Restarts+1, oe.Attempts)
	}
	if oe.Err == nil {
		t.Error("expected the last start's failure to be kept")
	}
}

func TestFitConstantTargets(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 2, 3})
	gp, err := Fit(x, []float64{4, 4, 4}, DefaultConfig([]Bounds{{0.1, 10}}), utils.NewRandSource(1))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	mean, _, err := gp.Predict(mat.NewDense(1, 1, []float64{2.5}))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if math.Abs(mean[0]-4) > 1e-6 {
		t.Errorf("expected constant prediction 4, got %f", mean[0])
	}
}

func TestLOOCV(t *testing.T) {
	x, y := linearData()
	gp, err := Fit(x, y, DefaultConfig([]Bounds{{0.1, 10}}), utils.NewRandSource(5))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	loo, err := gp.LOOCV()
	if err != nil {
		t.Fatalf("LOOCV failed: %v", err)
	}
	if loo < 0 || math.IsNaN(loo) || math.IsInf(loo, 0) {
		t.Fatalf("invalid LOO error %f", loo)
	}
	// Dropping any point of a straight line and predicting it from the rest
	// should stay well inside the spread of the targets.
	if loo > 40 {
		t.Errorf("LOO error %f too large for a linear response", loo)
	}
}

func TestEnsemble(t *testing.T) {
	set := models.NewCollocationSet(1, 2)
	for i, v := range []float64{0, 2.5, 5, 7.5, 10} {
		err := set.Append(models.CollocationPoint{
			Label:         utils.RunLabel("PC", i+1),
			EnsembleIndex: -1,
			Params:        models.NewParameterVector([]float64{v}),
			Output:        models.ObservationVector{2*v + 1, math.Sin(v / 3)},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	cfg := DefaultConfig([]Bounds{{0.1, 10}})
	ctx := context.Background()
	ens, err := FitEnsemble(ctx, set.Snapshot(), cfg, utils.NewRandSource(9), 2)
	if err != nil {
		t.Fatalf("FitEnsemble failed: %v", err)
	}
	if ens.Len() != 2 {
		t.Fatalf("expected 2 emulators, got %d", ens.Len())
	}

	q := mat.NewDense(5, 1, []float64{1, 3, 4, 6, 9})
	mean, std, err := ens.Predict(ctx, q, 3)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	r, c := mean.Dims()
	if r != 2 || c != 5 {
		t.Fatalf("expected 2x5 mean, got %dx%d", r, c)
	}
	for m := 0; m < 2; m++ {
		wantMean, wantStd, err := ens.GP(m).Predict(q)
		if err != nil {
			t.Fatalf("GP predict failed: %v", err)
		}
		if diff := cmp.Diff(wantMean, mat.Row(nil, m, mean)); diff != "" {
			t.Errorf("output %d mean mismatch (-want +got):\n%s", m, diff)
		}
		if diff := cmp.Diff(wantStd, mat.Row(nil, m, std)); diff != "" {
			t.Errorf("output %d std mismatch (-want +got):\n%s", m, diff)
		}
	}

	again, err := FitEnsemble(ctx, set.Snapshot(), cfg, utils.NewRandSource(9), 1)
	if err != nil {
		t.Fatalf("FitEnsemble failed: %v", err)
	}
	for m := 0; m < 2; m++ {
		if diff := cmp.Diff(ens.GP(m).Kernel(), again.GP(m).Kernel()); diff != "" {
			t.Errorf("output %d: worker count changed the fit (-a +b):\n%s", m, diff)
		}
	}

	loo, err := ens.LOOCV()
	if err != nil {
		t.Fatalf("LOOCV failed: %v", err)
	}
	if len(loo) != 2 {
		t.Errorf("expected 2 LOO errors, got %d", len(loo))
	}
}

func TestFitEnsembleInsufficientData(t *testing.T) {
	set := models.NewCollocationSet(1, 1)
	_ = set.Append(models.CollocationPoint{Label: "PC1", Params: models.NewParameterVector([]float64{1}), Output: models.ObservationVector{1}})

	_, err := FitEnsemble(context.Background(), set.Snapshot(), DefaultConfig([]Bounds{{0.1, 10}}), nil, 0)
	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

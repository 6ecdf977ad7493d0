package models

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParameterVectorImmutable(t *testing.T) {
	src := []float64{1, 2, 3}
	p := NewParameterVector(src)
	src[0] = 99

	if p.At(0) != 1 {
		t.Fatalf("constructor should copy, got %f", p.At(0))
	}

	vals := p.Values()
	vals[1] = 42
	if p.At(1) != 2 {
		t.Fatalf("Values should return a copy, got %f", p.At(1))
	}
}

func TestCollocationSetAppend(t *testing.T) {
	set := NewCollocationSet(2, 1)

	if err := set.Append(CollocationPoint{Label: "PC1", EnsembleIndex: -1, Params: NewParameterVector([]float64{1, 2}), Output: ObservationVector{3}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := set.Append(CollocationPoint{Label: "PC2", EnsembleIndex: 4, Params: NewParameterVector([]float64{2, 2}), Output: ObservationVector{5}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", set.Len())
	}

	err := set.Append(CollocationPoint{Label: "PC3", Params: NewParameterVector([]float64{1, 2}), Output: ObservationVector{3}})
	if !errors.Is(err, ErrDuplicatePoint) {
		t.Fatalf("expected ErrDuplicatePoint, got %v", err)
	}

	err = set.Append(CollocationPoint{Label: "PC3", Params: NewParameterVector([]float64{1}), Output: ObservationVector{3}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for params, got %v", err)
	}

	err = set.Append(CollocationPoint{Label: "PC3", Params: NewParameterVector([]float64{7, 7}), Output: ObservationVector{3, 4}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for outputs, got %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("failed appends must not grow the set, got %d", set.Len())
	}
}

func TestCollocationSnapshotIsolated(t *testing.T) {
	set := NewCollocationSet(1, 2)
	out := ObservationVector{1, 2}
	_ = set.Append(CollocationPoint{Label: "PC1", EnsembleIndex: 3, Params: NewParameterVector([]float64{0.5}), Output: out})
	out[0] = 100

	snap := set.Snapshot()
	_ = set.Append(CollocationPoint{Label: "PC2", EnsembleIndex: -1, Params: NewParameterVector([]float64{0.7}), Output: ObservationVector{3, 4}})

	if snap.Len() != 1 {
		t.Fatalf("snapshot should not see later appends, got %d", snap.Len())
	}
	if diff := cmp.Diff([]float64{1}, snap.OutputColumn(0)); diff != "" {
		t.Errorf("OutputColumn(0) mismatch (-want +got):\n%s", diff)
	}
	if !snap.ConsumedIndices()[3] {
		t.Error("expected ensemble index 3 to be consumed")
	}
	if !snap.ContainsRow([]float64{0.5}) || snap.ContainsRow([]float64{0.7}) {
		t.Error("ContainsRow should only match points in the snapshot")
	}

	x := set.Snapshot().Inputs()
	r, c := x.Dims()
	if r != 2 || c != 1 || x.At(1, 0) != 0.7 {
		t.Errorf("unexpected inputs matrix %dx%d", r, c)
	}
}

func TestCollocationSetConcurrentReaders(t *testing.T) {
	set := NewCollocationSet(1, 1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = set.Snapshot().Len()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		_ = set.Append(CollocationPoint{Label: "x", Params: NewParameterVector([]float64{float64(i)}), Output: ObservationVector{1}})
	}
	wg.Wait()
	if set.Len() != 50 {
		t.Fatalf("expected 50 points, got %d", set.Len())
	}
}

func TestErrorModel(t *testing.T) {
	combined, err := Combine(ErrorModel{0.1, 0.2}, nil, ErrorModel{0.01, 0.02})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(combined[0]-0.11) > 1e-12 || math.Abs(combined[1]-0.22) > 1e-12 {
		t.Errorf("unexpected combination %v", combined)
	}
	if _, err := Combine(ErrorModel{1}, ErrorModel{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	tests := []struct {
		name    string
		model   ErrorModel
		wantErr bool
	}{
		{"Valid", ErrorModel{0.01, 2}, false},
		{"Wrong length", ErrorModel{0.01}, true},
		{"Zero", ErrorModel{0, 1}, true},
		{"NaN", ErrorModel{math.NaN(), 1}, true},
		{"Inf", ErrorModel{math.Inf(1), 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate(2)
			if tt.wantErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

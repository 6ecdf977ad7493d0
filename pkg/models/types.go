package models

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch indicates vectors or matrices of incompatible sizes
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrDuplicatePoint indicates a parameter vector that is already a collocation point
	ErrDuplicatePoint = errors.New("parameter vector already in collocation set")
)

// ParameterVector is one combination of calibration parameter values.
// It is immutable: the constructor and accessors copy.
type ParameterVector struct {
	values []float64
}

// NewParameterVector creates a parameter vector from a copy of values
func NewParameterVector(values []float64) ParameterVector {
	v := make([]float64, len(values))
	copy(v, values)
	return ParameterVector{values: v}
}

// Len returns the number of parameters
func (p ParameterVector) Len() int {
	return len(p.values)
}

// At returns the i-th parameter value
func (p ParameterVector) At(i int) float64 {
	return p.values[i]
}

// Values returns a copy of the parameter values
func (p ParameterVector) Values() []float64 {
	v := make([]float64, len(p.values))
	copy(v, p.values)
	return v
}

// Equal reports exact element-wise equality
func (p ParameterVector) Equal(o ParameterVector) bool {
	return rowEqual(p.values, o.values)
}

// ObservationVector holds one simulator output (or the measured data), one value per observation dimension
type ObservationVector []float64

// Clone returns a copy of the observation vector
func (o ObservationVector) Clone() ObservationVector {
	c := make(ObservationVector, len(o))
	copy(c, o)
	return c
}

// Location is an observation point in the simulator's horizontal coordinates
type Location struct {
	X float64
	Y float64
}

// ErrorModel holds one likelihood variance per observation dimension
type ErrorModel []float64

// Validate checks that every variance is finite and strictly positive
func (e ErrorModel) Validate(outputs int) error {
	if len(e) != outputs {
		return fmt.Errorf("%w: error model has %d entries, want %d", ErrDimensionMismatch, len(e), outputs)
	}
	for i, v := range e {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("error model entry %d must be positive and finite, got %g", i, v)
		}
	}
	return nil
}

// Combine adds the variances of several error sources element-wise.
// All sources must have the same length; nil sources are skipped.
func Combine(sources ...ErrorModel) (ErrorModel, error) {
	var out ErrorModel
	for _, src := range sources {
		if src == nil {
			continue
		}
		if out == nil {
			out = make(ErrorModel, len(src))
		}
		if len(src) != len(out) {
			return nil, fmt.Errorf("%w: cannot combine error models of length %d and %d", ErrDimensionMismatch, len(out), len(src))
		}
		for i, v := range src {
			out[i] += v
		}
	}
	return out, nil
}

// ScorePair is the result of one Bayesian scoring pass
type ScorePair struct {
	BME    float64 `json:"bme"`
	RE     float64 `json:"re"`
	LogBME float64 `json:"log_bme"`
	// Degenerate is set when BME collapsed to zero; RE is then reported as 0
	Degenerate bool `json:"degenerate,omitempty"`
}

// CollocationPoint is a parameter vector that was evaluated by the simulator, with its output
type CollocationPoint struct {
	Label string
	// EnsembleIndex is the prior-ensemble row the point was drawn from, or -1
	// for points loaded from an earlier campaign
	EnsembleIndex int
	Params        ParameterVector
	Output        ObservationVector
}

// CollocationSet is the append-only history of evaluated points.
// The design loop is its only writer; everyone else reads snapshots.
type CollocationSet struct {
	mu      sync.RWMutex
	dims    int
	outputs int
	points  []CollocationPoint
}

// NewCollocationSet creates an empty set for the given parameter and output dimensions
func NewCollocationSet(dims, outputs int) *CollocationSet {
	return &CollocationSet{dims: dims, outputs: outputs}
}

// Dims returns the parameter dimensionality
func (c *CollocationSet) Dims() int {
	return c.dims
}

// Outputs returns the observation dimensionality
func (c *CollocationSet) Outputs() int {
	return c.outputs
}

// Len returns the number of evaluated points
func (c *CollocationSet) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points)
}

// Append adds an evaluated point. The parameter vector and its output are
// stored together so the set never holds a parameter without its observation.
func (c *CollocationSet) Append(p CollocationPoint) error {
	if p.Params.Len() != c.dims {
		return fmt.Errorf("%w: point has %d parameters, want %d", ErrDimensionMismatch, p.Params.Len(), c.dims)
	}
	if len(p.Output) != c.outputs {
		return fmt.Errorf("%w: point has %d outputs, want %d", ErrDimensionMismatch, len(p.Output), c.outputs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.points {
		if existing.Params.Equal(p.Params) {
			return fmt.Errorf("%w: %s duplicates %s", ErrDuplicatePoint, p.Label, existing.Label)
		}
	}
	p.Output = p.Output.Clone()
	c.points = append(c.points, p)
	return nil
}

// Snapshot returns a read-only view of the current points
func (c *CollocationSet) Snapshot() *CollocationSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	points := make([]CollocationPoint, len(c.points))
	copy(points, c.points)
	return &CollocationSnapshot{dims: c.dims, outputs: c.outputs, points: points}
}

// CollocationSnapshot is an immutable copy of a collocation set at one iteration
type CollocationSnapshot struct {
	dims    int
	outputs int
	points  []CollocationPoint
}

// Len returns the number of points in the snapshot
func (s *CollocationSnapshot) Len() int {
	return len(s.points)
}

// Dims returns the parameter dimensionality
func (s *CollocationSnapshot) Dims() int {
	return s.dims
}

// Outputs returns the observation dimensionality
func (s *CollocationSnapshot) Outputs() int {
	return s.outputs
}

// Point returns the i-th point
func (s *CollocationSnapshot) Point(i int) CollocationPoint {
	return s.points[i]
}

// Inputs returns the K×N matrix of collocation parameters
func (s *CollocationSnapshot) Inputs() *mat.Dense {
	if len(s.points) == 0 {
		return nil
	}
	x := mat.NewDense(len(s.points), s.dims, nil)
	for i, p := range s.points {
		x.SetRow(i, p.Params.values)
	}
	return x
}

// OutputColumn returns the K observed values of output dimension m
func (s *CollocationSnapshot) OutputColumn(m int) []float64 {
	col := make([]float64, len(s.points))
	for i, p := range s.points {
		col[i] = p.Output[m]
	}
	return col
}

// ConsumedIndices returns the prior-ensemble rows already used as collocation points
func (s *CollocationSnapshot) ConsumedIndices() map[int]bool {
	used := make(map[int]bool, len(s.points))
	for _, p := range s.points {
		if p.EnsembleIndex >= 0 {
			used[p.EnsembleIndex] = true
		}
	}
	return used
}

// ContainsRow reports whether a row exactly equals any collocation parameter vector
func (s *CollocationSnapshot) ContainsRow(row []float64) bool {
	for _, p := range s.points {
		if rowEqual(p.Params.values, row) {
			return true
		}
	}
	return false
}

func rowEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package models

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ParameterRange is the independent uniform prior of one calibration parameter
type ParameterRange struct {
	Name string
	Min  float64
	Max  float64
}

// Span returns the width of the prior range
func (r ParameterRange) Span() float64 {
	return r.Max - r.Min
}

// PriorEnsemble is a fixed sample of parameter vectors drawn from the prior.
// It serves both as the Monte-Carlo grid for scoring and as the candidate pool.
type PriorEnsemble struct {
	ranges []ParameterRange
	data   *mat.Dense
}

// SamplePriorEnsemble draws size rows, each parameter independently uniform on its range
func SamplePriorEnsemble(ranges []ParameterRange, size int, src rand.Source) (*PriorEnsemble, error) {
	if len(ranges) == 0 {
		return nil, errors.New("prior ensemble needs at least one parameter")
	}
	if size <= 0 {
		return nil, fmt.Errorf("prior ensemble size must be positive, got %d", size)
	}

	data := mat.NewDense(size, len(ranges), nil)
	for j, r := range ranges {
		if !(r.Max > r.Min) {
			return nil, fmt.Errorf("parameter %s: max (%g) must exceed min (%g)", r.Name, r.Max, r.Min)
		}
		dist := distuv.Uniform{Min: r.Min, Max: r.Max, Src: src}
		for i := 0; i < size; i++ {
			data.Set(i, j, dist.Rand())
		}
	}
	return &PriorEnsemble{ranges: cloneRanges(ranges), data: data}, nil
}

// NewPriorEnsemble wraps explicit rows, e.g. an ensemble stored by an earlier campaign
func NewPriorEnsemble(ranges []ParameterRange, rows [][]float64) (*PriorEnsemble, error) {
	if len(rows) == 0 {
		return nil, errors.New("prior ensemble needs at least one row")
	}
	data := mat.NewDense(len(rows), len(ranges), nil)
	for i, row := range rows {
		if len(row) != len(ranges) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(row), len(ranges))
		}
		data.SetRow(i, row)
	}
	return &PriorEnsemble{ranges: cloneRanges(ranges), data: data}, nil
}

// Size returns the number of rows
func (e *PriorEnsemble) Size() int {
	r, _ := e.data.Dims()
	return r
}

// Dims returns the number of parameters
func (e *PriorEnsemble) Dims() int {
	return len(e.ranges)
}

// Ranges returns the prior ranges
func (e *PriorEnsemble) Ranges() []ParameterRange {
	return cloneRanges(e.ranges)
}

// Row returns the i-th parameter vector
func (e *PriorEnsemble) Row(i int) ParameterVector {
	return ParameterVector{values: mat.Row(nil, i, e.data)}
}

// RawRow returns a view of the i-th row; callers must not modify it
func (e *PriorEnsemble) RawRow(i int) []float64 {
	return e.data.RawRowView(i)
}

// Matrix returns a read-only view of the S×N ensemble
func (e *PriorEnsemble) Matrix() mat.Matrix {
	return e.data
}

func cloneRanges(r []ParameterRange) []ParameterRange {
	out := make([]ParameterRange, len(r))
	copy(out, r)
	return out
}

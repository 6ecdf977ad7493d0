// Package campaign persists a calibration campaign in the plain-text layout
// of the results directory: the parameter log, one observation file per run
// and the score histories.
package campaign

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

// File names inside the results directory
const (
	ParameterLogName = "parameter_file.txt"
	BMEFileName      = "BME.txt"
	REFileName       = "RE.txt"
)

// ParameterDecimals is the precision of parameter values in the log
const ParameterDecimals = 3

// Recorder writes campaign progress to a results directory
type Recorder struct {
	dir       string
	variable  string
	locations []models.Location

	mu sync.Mutex
}

// NewRecorder creates a recorder. Observation files are written as one row per
// location: x, y and the run's values for that location.
func NewRecorder(dir, variable string, locations []models.Location) (*Recorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if variable == "" {
		return nil, fmt.Errorf("calibration variable name is required")
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("at least one observation location is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &Recorder{dir: dir, variable: variable, locations: append([]models.Location(nil), locations...)}, nil
}

// Dir returns the results directory
func (r *Recorder) Dir() string {
	return r.dir
}

// RecordPoint writes the run's observation file and appends its parameters to the log
func (r *Recorder) RecordPoint(p models.CollocationPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeObservations(p); err != nil {
		return err
	}
	return appendLine(filepath.Join(r.dir, ParameterLogName), FormatParameterLine(p.Label, p.Params))
}

// RecordScores rewrites the BME and RE histories
func (r *Recorder) RecordScores(bme, re []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeColumn(filepath.Join(r.dir, BMEFileName), bme); err != nil {
		return err
	}
	return writeColumn(filepath.Join(r.dir, REFileName), re)
}

// ObservationFile returns the path of a run's observation file
func (r *Recorder) ObservationFile(label string) string {
	return ObservationPath(r.dir, label, r.variable)
}

// ObservationPath returns <dir>/<label>_<variable>.txt
func ObservationPath(dir, label, variable string) string {
	return filepath.Join(dir, label+"_"+variable+".txt")
}

// FormatParameterLine renders "<label>; <p1>; ...; <pN>" with ParameterDecimals decimals
func FormatParameterLine(label string, params models.ParameterVector) string {
	parts := make([]string, 0, params.Len()+1)
	parts = append(parts, label)
	for _, v := range params.Values() {
		parts = append(parts, strconv.FormatFloat(v, 'f', ParameterDecimals, 64))
	}
	return strings.Join(parts, "; ")
}

// writeObservations writes x y v1 v2 ... per location; the output vector is
// column-major, value column c of location i sits at c*len(locations)+i
func (r *Recorder) writeObservations(p models.CollocationPoint) error {
	n := len(r.locations)
	if len(p.Output)%n != 0 {
		return fmt.Errorf("%w: %d outputs do not split over %d locations", models.ErrDimensionMismatch, len(p.Output), n)
	}
	cols := len(p.Output) / n

	var buf bytes.Buffer
	for i, loc := range r.locations {
		fmt.Fprintf(&buf, "%1.6f %1.6f", loc.X, loc.Y)
		for c := 0; c < cols; c++ {
			fmt.Fprintf(&buf, " %1.8f", p.Output[c*n+i])
		}
		buf.WriteByte('\n')
	}
	return os.WriteFile(r.ObservationFile(p.Label), buf.Bytes(), 0o644)
}

// appendLine appends text to a file, preceded by a newline only when the file
// already has content
func appendLine(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if info.Size() > 0 {
		w.WriteByte('\n')
	}
	w.WriteString(text)
	return w.Flush()
}

// writeColumn writes one value per line in full precision
func writeColumn(path string, vals []float64) error {
	var buf bytes.Buffer
	for _, v := range vals {
		fmt.Fprintf(&buf, "%.18e\n", v)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

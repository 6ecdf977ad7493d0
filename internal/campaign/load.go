package campaign

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/simulator"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/surrogate"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

// ParameterEntry is one line of the parameter log
type ParameterEntry struct {
	Label  string
	Params []float64
}

// ReadParameterLog reads "<label>; <p1>; ...; <pN>" lines; blank lines are skipped
func ReadParameterLog(path string) ([]ParameterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ParameterEntry
	dims := -1
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected a label and at least one parameter", path, lineNo)
		}
		e := ParameterEntry{Label: strings.TrimSpace(fields[0]), Params: make([]float64, len(fields)-1)}
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: parameter %d: %w", path, lineNo, i+1, err)
			}
			e.Params[i] = v
		}
		if dims >= 0 && len(e.Params) != dims {
			return nil, fmt.Errorf("%s:%d: %w: %d parameters, earlier lines have %d", path, lineNo, models.ErrDimensionMismatch, len(e.Params), dims)
		}
		dims = len(e.Params)
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadCollocationSet rebuilds the evaluated points of earlier runs from the
// parameter log and the per-run observation files in dir. valueColumns select
// the table columns that form the observation vector, column-major.
//
// The log keeps ParameterDecimals decimals, so reloaded points never equal an
// ensemble row exactly. When ens is non-nil each point is given the index of
// the ensemble row that logs identically, which keeps it out of later
// candidate pools; points without such a row keep index -1.
func LoadCollocationSet(dir, variable string, valueColumns []int, ens *models.PriorEnsemble) (*models.CollocationSet, error) {
	entries, err := ReadParameterLog(filepath.Join(dir, ParameterLogName))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s has no collocation points", ParameterLogName)
	}

	indices := matchEnsemble(entries, ens)

	var set *models.CollocationSet
	for i, e := range entries {
		path := ObservationPath(dir, e.Label, variable)
		tbl, err := simulator.ReadTableFile(path)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", e.Label, err)
		}
		out, err := columnMajor(tbl, valueColumns)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if set == nil {
			set = models.NewCollocationSet(len(e.Params), len(out))
		}
		err = set.Append(models.CollocationPoint{
			Label:         e.Label,
			EnsembleIndex: indices[i],
			Params:        models.NewParameterVector(e.Params),
			Output:        out,
		})
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", e.Label, err)
		}
	}
	return set, nil
}

// matchEnsemble returns, per entry, the first unclaimed ensemble row whose
// values format to the same logged text, or -1.
func matchEnsemble(entries []ParameterEntry, ens *models.PriorEnsemble) []int {
	indices := make([]int, len(entries))
	for i := range indices {
		indices[i] = -1
	}
	if ens == nil {
		return indices
	}

	rows := make(map[string][]int, ens.Size())
	for i := 0; i < ens.Size(); i++ {
		key := loggedKey(ens.RawRow(i))
		rows[key] = append(rows[key], i)
	}
	for i, e := range entries {
		if len(e.Params) != ens.Dims() {
			continue
		}
		key := loggedKey(e.Params)
		if candidates := rows[key]; len(candidates) > 0 {
			indices[i] = candidates[0]
			rows[key] = candidates[1:]
		}
	}
	return indices
}

func loggedKey(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', ParameterDecimals, 64)
	}
	return strings.Join(parts, ";")
}

// LoadObservations reads the measured data: a delimited table with a header
// and rows "x, y, v1, v2, ...". It returns the column-major observation vector
// over valueColumns and the measurement locations.
func LoadObservations(path string, valueColumns []int) (models.ObservationVector, []models.Location, error) {
	tbl, err := simulator.ReadTableFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(tbl.Rows) == 0 {
		return nil, nil, fmt.Errorf("%s: no observation rows", path)
	}
	obs, err := columnMajor(tbl, valueColumns)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	locs := make([]models.Location, len(tbl.Rows))
	for i, row := range tbl.Rows {
		locs[i] = models.Location{X: row[0], Y: row[1]}
	}
	return obs, locs, nil
}

func columnMajor(tbl *simulator.Table, columns []int) (models.ObservationVector, error) {
	out := make(models.ObservationVector, 0, len(columns)*len(tbl.Rows))
	for _, c := range columns {
		for i, row := range tbl.Rows {
			if c < 0 || c >= len(row) {
				return nil, fmt.Errorf("row %d has %d columns, column %d requested", i+1, len(row), c)
			}
			out = append(out, row[c])
		}
	}
	return out, nil
}

// ErrorFile reads per-output error variances from a whitespace-separated file.
// The file is read on every call so it can be refreshed between iterations.
type ErrorFile struct {
	Path string
}

// ErrorModel reads the current variances; the fitted surrogate is not used
func (f ErrorFile) ErrorModel(_ context.Context, _ *surrogate.Ensemble) (models.ErrorModel, error) {
	return ReadErrorModel(f.Path)
}

// ReadErrorModel parses a whitespace- or newline-separated list of variances
func ReadErrorModel(path string) (models.ErrorModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var em models.ErrorModel
	for i, s := range strings.Fields(string(data)) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: value %d: %w", path, i+1, err)
		}
		em = append(em, v)
	}
	if len(em) == 0 {
		return nil, fmt.Errorf("%s: no error variances", path)
	}
	return em, nil
}

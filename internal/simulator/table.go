package simulator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

// Table is a numeric results table with x and y in the first two columns
type Table struct {
	Rows [][]float64
}

// ReadTable reads a whitespace- or comma-delimited numeric table. Blank lines,
// '#' comments and a non-numeric header line are skipped.
func ReadTable(r io.Reader) (*Table, error) {
	t := &Table{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	headerSeen := false
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		})
		row := make([]float64, len(fields))
		var parseErr error
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				parseErr = fmt.Errorf("line %d, column %d: %w", lineNo, i, err)
				break
			}
			row[i] = v
		}
		if parseErr != nil {
			if len(t.Rows) == 0 && !headerSeen {
				headerSeen = true
				continue
			}
			return nil, parseErr
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("line %d: need at least x and y columns, got %d", lineNo, len(row))
		}
		t.Rows = append(t.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadTableFile reads a results table from disk
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Sample picks, for every location, the row nearest to it in the x-y plane and
// returns the requested columns column-major: all locations of the first
// column, then all locations of the next.
func (t *Table) Sample(locations []models.Location, columns []int) ([]float64, error) {
	if len(t.Rows) == 0 {
		return nil, ErrMissingLocation
	}

	pts := make(kdtree.Points, 0, len(t.Rows))
	rowOf := make(map[[2]float64]int, len(t.Rows))
	for i, row := range t.Rows {
		key := [2]float64{row[0], row[1]}
		if _, dup := rowOf[key]; dup {
			continue
		}
		rowOf[key] = i
		pts = append(pts, kdtree.Point{row[0], row[1]})
	}
	tree := kdtree.New(pts, false)

	nearest := make([]int, len(locations))
	for i, loc := range locations {
		got, _ := tree.Nearest(kdtree.Point{loc.X, loc.Y})
		p := got.(kdtree.Point)
		nearest[i] = rowOf[[2]float64{p[0], p[1]}]
	}

	out := make([]float64, 0, len(columns)*len(locations))
	for _, c := range columns {
		for i, r := range nearest {
			row := t.Rows[r]
			if c < 0 || c >= len(row) {
				return nil, fmt.Errorf("location %d: result row has %d columns, column %d requested", i, len(row), c)
			}
			out = append(out, row[c])
		}
	}
	return out, nil
}

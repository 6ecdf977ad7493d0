package campaign

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

// PriorEnsemble returns the ensemble stored at path, or samples a new one and
// stores it there so a resumed campaign scores against the same rows. An empty
// path samples without storing.
func PriorEnsemble(path string, ranges []models.ParameterRange, size int, rng *utils.RandSource) (*models.PriorEnsemble, error) {
	if path != "" {
		ens, err := LoadPriorEnsemble(path, ranges)
		if err == nil {
			return ens, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	ens, err := models.SamplePriorEnsemble(ranges, size, rng.Source())
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := SavePriorEnsemble(path, ens); err != nil {
			return nil, err
		}
	}
	return ens, nil
}

// SavePriorEnsemble writes one whitespace-separated row per ensemble member
func SavePriorEnsemble(path string, ens *models.PriorEnsemble) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	for i := 0; i < ens.Size(); i++ {
		for j, v := range ens.RawRow(i) {
			if j > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadPriorEnsemble reads an ensemble written by SavePriorEnsemble
func LoadPriorEnsemble(path string, ranges []models.ParameterRange) (*models.PriorEnsemble, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for j, s := range fields {
			if row[j], err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", path, len(rows)+1, err)
			}
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	ens, err := models.NewPriorEnsemble(ranges, rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ens, nil
}

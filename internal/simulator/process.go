package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/steering"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

// Placeholders substituted in ResultsOutput and PostCommand
const (
	labelPlaceholder   = "{label}"
	resultsPlaceholder = "{results}"
)

// Process drives a command-line simulator through its input files. Runs share
// the steering and parameter files, so evaluations are serialised.
type Process struct {
	cfg        config.Simulator
	names      []string
	locations  []models.Location
	simDir     string
	steering   *steering.Rewriter
	parameters *steering.Rewriter

	mu sync.Mutex
}

// NewProcess creates a process simulator for the named parameters. Results are
// sampled at locations; simDir, when set, receives each run's raw results file.
func NewProcess(cfg config.Simulator, names []string, locations []models.Location, simDir string) (*Process, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("simulator command is required")
	}
	if cfg.SteeringFile == "" {
		return nil, fmt.Errorf("simulator steering file is required")
	}
	if cfg.ResultsOutput == "" {
		return nil, fmt.Errorf("simulator results output is required")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one parameter name is required")
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("at least one observation location is required")
	}
	if len(cfg.ResultColumns) == 0 {
		return nil, fmt.Errorf("at least one result column is required")
	}

	st, err := steering.NewRewriter(steering.SeparatorColon)
	if err != nil {
		return nil, err
	}
	// parameters go to the Fortran file when there is one, else into the steering file
	params := st
	if cfg.ParameterFile != "" {
		if params, err = steering.NewRewriter(steering.SeparatorEquals); err != nil {
			return nil, err
		}
	}

	return &Process{
		cfg:        cfg,
		names:      append([]string(nil), names...),
		locations:  append([]models.Location(nil), locations...),
		simDir:     simDir,
		steering:   st,
		parameters: params,
	}, nil
}

// Outputs returns the length of the observation vectors produced
func (p *Process) Outputs() int {
	return len(p.cfg.ResultColumns) * len(p.locations)
}

// ResultsFile returns the name of the raw results file of a run
func (p *Process) ResultsFile(runLabel string) string {
	name := p.cfg.ResultsPrefix + runLabel
	if p.cfg.ResultsExt != "" {
		name += "." + p.cfg.ResultsExt
	}
	return name
}

// Evaluate writes params into the input files, runs the simulator and samples
// its results table at the observation locations
func (p *Process) Evaluate(ctx context.Context, params models.ParameterVector, runLabel string) (models.ObservationVector, error) {
	if params.Len() != len(p.names) {
		return nil, failure(runLabel, fmt.Errorf("%w: %d parameters for %d names", models.ErrDimensionMismatch, params.Len(), len(p.names)), "")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.With("run", runLabel)
	start := time.Now()

	if err := p.writeInputs(params, runLabel); err != nil {
		return nil, failure(runLabel, err, "")
	}

	args := append(strings.Fields(p.cfg.Command), p.cfg.SteeringFile)
	if p.cfg.Processors > 0 {
		args = append(args, "--ncsize="+strconv.Itoa(p.cfg.Processors))
	}
	log.Info("starting simulator", "command", strings.Join(args, " "))
	if stderr, err := p.run(ctx, args); err != nil {
		return nil, failure(runLabel, err, stderr)
	}

	results := p.ResultsFile(runLabel)
	if p.cfg.PostCommand != "" {
		post := strings.Fields(p.substitute(p.cfg.PostCommand, runLabel, results))
		log.Debug("post-processing results", "command", strings.Join(post, " "))
		if stderr, err := p.run(ctx, post); err != nil {
			return nil, failure(runLabel, fmt.Errorf("post-processing: %w", err), stderr)
		}
	}

	table, err := ReadTableFile(p.path(p.substitute(p.cfg.ResultsOutput, runLabel, results)))
	if err != nil {
		return nil, failure(runLabel, err, "")
	}
	out, err := table.Sample(p.locations, p.cfg.ResultColumns)
	if err != nil {
		return nil, failure(runLabel, err, "")
	}
	if err := checkFinite(out); err != nil {
		return nil, failure(runLabel, err, "")
	}

	if p.simDir != "" {
		p.archive(results, log.With("results", results))
	}

	log.Info("simulator finished", "duration", utils.FormatDuration(time.Since(start)), "outputs", len(out))
	return models.ObservationVector(out), nil
}

// writeInputs rewrites the parameter values and the results file name
func (p *Process) writeInputs(params models.ParameterVector, runLabel string) error {
	edits := make([]steering.Edit, len(p.names))
	for i, name := range p.names {
		edits[i] = steering.Edit{
			Key:  name,
			Line: fmt.Sprintf(p.cfg.ValueFormat, name, round(params.At(i), p.cfg.Decimals)),
		}
	}

	var steeringEdits []steering.Edit
	if p.cfg.ResultsKey != "" {
		steeringEdits = append(steeringEdits, steering.Edit{
			Key:  p.cfg.ResultsKey,
			Line: fmt.Sprintf("%s : %s", p.cfg.ResultsKey, p.ResultsFile(runLabel)),
		})
	}
	if p.cfg.ParameterFile == "" {
		steeringEdits = append(steeringEdits, edits...)
	} else if _, err := p.parameters.RewriteFile(p.path(p.cfg.ParameterFile), edits...); err != nil {
		return fmt.Errorf("parameter file: %w", err)
	}
	if len(steeringEdits) == 0 {
		return nil
	}
	if _, err := p.steering.RewriteFile(p.path(p.cfg.SteeringFile), steeringEdits...); err != nil {
		return fmt.Errorf("steering file: %w", err)
	}
	return nil
}

// run executes args in the working directory without a timeout; only ctx
// cancellation stops a run
func (p *Process) run(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = p.cfg.WorkDir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if outBuf.Len() > 0 {
		logger.Debug("simulator output", "command", args[0], "stdout", outBuf.String())
	}
	return errBuf.String(), err
}

// archive moves the raw results file into the simulations directory
func (p *Process) archive(results string, log *slog.Logger) {
	if err := os.MkdirAll(p.simDir, 0o755); err != nil {
		log.Warn("cannot create simulations directory", "error", err)
		return
	}
	err := os.Rename(p.path(results), filepath.Join(p.simDir, results))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("results file not found, nothing archived")
	case err != nil:
		log.Warn("failed to archive results file", "error", err)
	}
}

func (p *Process) path(name string) string {
	if filepath.IsAbs(name) || p.cfg.WorkDir == "" {
		return name
	}
	return filepath.Join(p.cfg.WorkDir, name)
}

func (p *Process) substitute(s, runLabel, results string) string {
	return strings.NewReplacer(labelPlaceholder, runLabel, resultsPlaceholder, results).Replace(s)
}

func round(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-runewidth"

	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/campaign"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/design"
	"github.com/GoSim-25-26J-441/surrogate-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/utils"
)

func main() {
	var configPath string
	var envPath string
	var logLevel string
	var textLogs bool
	var plotPath string

	flag.StringVar(&configPath, "config", "config/config.yaml", "campaign config file")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with environment overrides")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	flag.BoolVar(&textLogs, "text-logs", false, "write human-readable logs instead of JSON")
	flag.StringVar(&plotPath, "plot", "", "score plot output (PNG); overrides the config")
	flag.Parse()

	if err := config.LoadEnvFile(envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	if plotPath == "" {
		plotPath = cfg.Paths.Plot
	}

	campaignID := utils.GenerateCampaignID()
	if textLogs {
		logger.SetDefault(logger.NewText(logLevel, os.Stderr).With("campaign", campaignID))
	} else {
		logger.SetDefault(logger.New(logLevel, os.Stderr).With("campaign", campaignID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, plotPath, os.Stdout); err != nil {
		logger.Error("calibration failed", failureAttrs(err)...)
		stop()
		os.Exit(1)
	}
}

// failureAttrs describes a fatal error by stage. Initialisation and the final
// fit belong to no iteration, so they carry the stage alone.
func failureAttrs(err error) []any {
	var se *design.StageError
	if !errors.As(err, &se) {
		return []any{"error", err}
	}
	if se.Iteration < 0 {
		return []any{"stage", se.Stage, "error", se.Err}
	}
	return []any{"iteration", se.Iteration + 1, "stage", se.Stage, "error", se.Err}
}

func run(ctx context.Context, cfg *config.Config, plotPath string, out io.Writer) error {
	c, err := setup(cfg)
	if err != nil {
		return err
	}

	c.loop.WithProgressReporter(func(iter int, score models.ScorePair) {
		logger.Info("bayesian iteration finished",
			"progress", fmt.Sprintf("%d/%d", iter+1, cfg.IterationLimit),
			"bme", score.BME,
			"re", score.RE)
	})

	result, err := c.loop.Run(ctx, c.set)
	if err != nil {
		return err
	}

	printSummary(out, result, c.names, c.collector)

	if plotPath != "" && len(result.RE) > 0 {
		if err := campaign.ScorePlot(plotPath, result.BME, result.RE); err != nil {
			logger.Warn("failed to write score plot", "path", plotPath, "error", err)
		} else {
			logger.Info("score plot written", "path", plotPath)
		}
	}
	return nil
}

// printSummary writes one row per iteration: run label, RE and BME of the
// belief before the run, and the selected parameter values
func printSummary(w io.Writer, result *design.Result, names []string, collector *metrics.Collector) {
	headers := []string{"Iter", "Label", "RE", "BME", "Pool"}
	headers = append(headers, names...)

	rows := make([][]string, 0, len(result.Iterations))
	for _, it := range result.Iterations {
		row := []string{
			fmt.Sprintf("%d", it.Iteration+1),
			it.Label,
			fmt.Sprintf("%.4f", it.Score.RE),
			fmt.Sprintf("%.4e", it.Score.BME),
			fmt.Sprintf("%d", it.PoolSize),
		}
		for _, v := range it.Params.Values() {
			row = append(row, fmt.Sprintf("%.3f", v))
		}
		rows = append(rows, row)
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				io.WriteString(w, "  ")
			}
			io.WriteString(w, runewidth.FillRight(cell, widths[i]))
		}
		io.WriteString(w, "\n")
	}
	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}

	fmt.Fprintf(w, "\ncollocation points: %d, duration: %s\n", result.Snapshot.Len(), utils.FormatDuration(result.Duration))
	if agg := collector.Aggregate(metrics.MetricEvaluationSeconds, nil); agg != nil {
		fmt.Fprintf(w, "simulator runs: %d, mean %.1fs, max %.1fs\n", agg.Count, agg.Mean, agg.Max)
	}
	if conv := result.Convergence; conv.Converged {
		fmt.Fprintf(w, "RE history converged at iteration %d: %s\n", conv.FirstIteration+1, conv.Reason)
	}
}

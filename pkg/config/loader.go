package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/GoSim-25-26J-441/surrogate-calibration/pkg/models"
)

// Environment variables that override the campaign file
const (
	EnvLogLevel         = "BALCAL_LOG_LEVEL"
	EnvProcessors       = "BALCAL_PROCESSORS"
	EnvSimulatorCommand = "BALCAL_SIMULATOR_COMMAND"
)

// LoadEnvFile loads variables from a dotenv file into the process environment.
// A missing file is not an error; variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads and parses a campaign file, then applies environment overrides
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if cfg.Simulator != nil {
		if v, ok := os.LookupEnv(EnvProcessors); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", EnvProcessors, err)
			}
			cfg.Simulator.Processors = n
		}
		if v, ok := os.LookupEnv(EnvSimulatorCommand); ok && v != "" {
			cfg.Simulator.Command = strings.TrimSpace(v)
		}
	}
	// overrides bypass the checks ParseConfigYAML ran
	return validateConfig(cfg)
}

// ParameterRanges returns the prior ranges in parameter order
func (c *Config) ParameterRanges() []models.ParameterRange {
	ranges := make([]models.ParameterRange, len(c.Parameters))
	for i, p := range c.Parameters {
		ranges[i] = models.ParameterRange{Name: p.Name, Min: p.Min, Max: p.Max}
	}
	return ranges
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.IterationLimit < 0 {
		return fmt.Errorf("iteration_limit cannot be negative, got %d", cfg.IterationLimit)
	}

	// Validate parameters
	if len(cfg.Parameters) == 0 {
		return fmt.Errorf("at least one parameter must be defined")
	}
	names := make(map[string]bool)
	for _, p := range cfg.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		names[p.Name] = true
		if !(p.Max > p.Min) {
			return fmt.Errorf("parameter %s: max (%g) must exceed min (%g)", p.Name, p.Max, p.Min)
		}
		if len(p.LengthScaleBounds) != 0 && len(p.LengthScaleBounds) != 2 {
			return fmt.Errorf("parameter %s: length_scale_bounds must have two values", p.Name)
		}
		lo, hi := p.LengthScaleBoundsOrDefault()
		if !(lo > 0) || !(hi >= lo) {
			return fmt.Errorf("parameter %s: invalid length_scale_bounds [%g, %g]", p.Name, lo, hi)
		}
		if l := p.InitialLengthScaleOrDefault(); l < lo || l > hi {
			return fmt.Errorf("parameter %s: initial_length_scale %g outside bounds [%g, %g]", p.Name, l, lo, hi)
		}
	}

	if err := validateActiveLearning(&cfg.ActiveLearning, cfg.Prior.SampleSize, cfg.IterationLimit); err != nil {
		return fmt.Errorf("active_learning validation failed: %w", err)
	}

	if cfg.Surrogate.Nugget <= 0 {
		return fmt.Errorf("surrogate nugget must be positive, got %g", cfg.Surrogate.Nugget)
	}
	if cfg.Surrogate.Restarts < 0 {
		return fmt.Errorf("surrogate restarts cannot be negative, got %d", cfg.Surrogate.Restarts)
	}
	if cfg.Surrogate.Workers < 0 {
		return fmt.Errorf("surrogate workers cannot be negative, got %d", cfg.Surrogate.Workers)
	}

	if err := validateErrorModel(&cfg.ErrorModel); err != nil {
		return fmt.Errorf("error_model validation failed: %w", err)
	}

	for _, c := range cfg.Observations.ValueColumns {
		if c < 2 {
			return fmt.Errorf("observations value column %d overlaps the x/y coordinates", c)
		}
	}

	if cfg.Simulator != nil {
		if err := validateSimulator(cfg.Simulator); err != nil {
			return fmt.Errorf("simulator validation failed: %w", err)
		}
	}

	return nil
}

func validateActiveLearning(al *ActiveLearning, sampleSize, iterations int) error {
	if sampleSize <= 0 {
		return fmt.Errorf("prior sample_size must be positive, got %d", sampleSize)
	}
	if al.DSize <= 0 {
		return fmt.Errorf("d_size must be positive, got %d", al.DSize)
	}
	if al.DSize+iterations > sampleSize {
		return fmt.Errorf("d_size (%d) + iteration_limit (%d) exceeds prior sample_size (%d)", al.DSize, iterations, sampleSize)
	}
	if al.ExplorationSize <= 0 {
		return fmt.Errorf("exploration_size must be positive, got %d", al.ExplorationSize)
	}
	validStrategies := map[string]bool{
		"RE":       true,
		"BME":      true,
		"weighted": true,
	}
	if !validStrategies[al.Strategy] {
		return fmt.Errorf("invalid strategy: %s (must be RE, BME, or weighted)", al.Strategy)
	}
	if al.Weight < 0 || al.Weight > 1 {
		return fmt.Errorf("weight must be between 0 and 1, got %f", al.Weight)
	}
	if al.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", al.Workers)
	}
	return nil
}

func validateErrorModel(em *ErrorModelConfig) error {
	switch em.Source {
	case "loocv", "none":
	case "file":
		if em.File == "" {
			return fmt.Errorf("source file requires a file path")
		}
	default:
		return fmt.Errorf("invalid source: %s (must be loocv, file, or none)", em.Source)
	}
	if em.MeasurementVariance < 0 {
		return fmt.Errorf("measurement_variance cannot be negative, got %g", em.MeasurementVariance)
	}
	if em.Source == "none" && em.MeasurementVariance == 0 {
		return fmt.Errorf("source none requires a positive measurement_variance")
	}
	return nil
}

func validateSimulator(s *Simulator) error {
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if s.SteeringFile == "" {
		return fmt.Errorf("steering_file cannot be empty")
	}
	if s.ResultsOutput == "" {
		return fmt.Errorf("results_output cannot be empty")
	}
	if !strings.Contains(s.ValueFormat, "%s") {
		return fmt.Errorf("value_format %q must contain %%s for the parameter name", s.ValueFormat)
	}
	if s.Decimals < 0 {
		return fmt.Errorf("decimals cannot be negative, got %d", s.Decimals)
	}
	if s.Processors <= 0 {
		return fmt.Errorf("processors must be positive, got %d", s.Processors)
	}
	for _, c := range s.ResultColumns {
		if c < 0 {
			return fmt.Errorf("result column %d cannot be negative", c)
		}
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	// Test loading the reference campaign file
	cfg, err := LoadConfig("../../config/config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.IterationLimit != 2 {
		t.Errorf("Expected iteration_limit 2, got %d", cfg.IterationLimit)
	}
	if len(cfg.Parameters) != 8 {
		t.Fatalf("Expected 8 parameters, got %d", len(cfg.Parameters))
	}

	a := cfg.Parameters[0]
	if a.Name != "A" || a.Min != 6 || a.Max != 8 {
		t.Errorf("Unexpected parameter A: %+v", a)
	}
	if lo, hi := a.LengthScaleBoundsOrDefault(); lo != 6 || hi != 8 {
		t.Errorf("Expected length-scale bounds (6, 8), got (%g, %g)", lo, hi)
	}
	if l := a.InitialLengthScaleOrDefault(); l != 7 {
		t.Errorf("Expected initial length-scale 7, got %g", l)
	}

	if cfg.ActiveLearning.DSize != 1000 {
		t.Errorf("Expected d_size 1000, got %d", cfg.ActiveLearning.DSize)
	}
	if cfg.ErrorModel.Source != "file" || cfg.ErrorModel.File != "Error.txt" {
		t.Errorf("Unexpected error model %+v", cfg.ErrorModel)
	}

	if cfg.Simulator == nil {
		t.Fatal("Simulator should not be nil")
	}
	if cfg.Simulator.ResultsKey != "RESULTS FILE" {
		t.Errorf("Expected results key 'RESULTS FILE', got '%s'", cfg.Simulator.ResultsKey)
	}
	if cfg.Simulator.Processors != 4 {
		t.Errorf("Expected 4 processors, got %d", cfg.Simulator.Processors)
	}

	ranges := cfg.ParameterRanges()
	if len(ranges) != 8 || ranges[1].Name != "B" || ranges[1].Span() != 3 {
		t.Errorf("Unexpected parameter ranges %+v", ranges)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvProcessors, "16")
	t.Setenv(EnvSimulatorCommand, "/opt/telemac/telemac2d.py")

	cfg, err := LoadConfig("../../config/config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.Simulator.Processors != 16 {
		t.Errorf("Expected 16 processors, got %d", cfg.Simulator.Processors)
	}
	if cfg.Simulator.Command != "/opt/telemac/telemac2d.py" {
		t.Errorf("Unexpected command %q", cfg.Simulator.Command)
	}

	t.Setenv(EnvProcessors, "many")
	if _, err := LoadConfig("../../config/config.yaml"); err == nil {
		t.Error("Expected error for non-numeric processors override")
	}
}

func TestLoadConfigEnvOverridesValidated(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative processors", EnvProcessors, "-4"},
		{"zero processors", EnvProcessors, "0"},
		{"blank command", EnvSimulatorCommand, "   "},
		{"unknown log level", EnvLogLevel, "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadConfig("../../config/config.yaml"); err == nil {
				t.Errorf("Expected %s=%q to be rejected", tt.key, tt.value)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("Missing env file should be ignored, got %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BALCAL_TEST_ENV_FILE=from-file\n"), 0o644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("BALCAL_TEST_ENV_FILE") })

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := os.Getenv("BALCAL_TEST_ENV_FILE"); got != "from-file" {
		t.Errorf("Expected variable from env file, got %q", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			IterationLimit: 3,
			Parameters:     []Parameter{{Name: "k", Min: 0, Max: 10}},
			Prior:          Prior{SampleSize: 100},
			ActiveLearning: ActiveLearning{DSize: 20, ExplorationSize: 500},
			ErrorModel:     ErrorModelConfig{Source: "none", MeasurementVariance: 0.01},
		}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"Valid config", func(*Config) {}, false},
		{"Invalid log level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"No parameters", func(c *Config) { c.Parameters = nil }, true},
		{"Duplicate parameter", func(c *Config) { c.Parameters = append(c.Parameters, c.Parameters[0]) }, true},
		{"Empty range", func(c *Config) { c.Parameters[0].Max = 0 }, true},
		{"Bad bounds length", func(c *Config) { c.Parameters[0].LengthScaleBounds = []float64{1} }, true},
		{"Initial outside bounds", func(c *Config) { c.Parameters[0].InitialLengthScale = 50 }, true},
		{"Pool exceeds prior", func(c *Config) { c.ActiveLearning.DSize = 99 }, true},
		{"Unknown strategy", func(c *Config) { c.ActiveLearning.Strategy = "random" }, true},
		{"Weight out of range", func(c *Config) { c.ActiveLearning.Weight = 1.5 }, true},
		{"Unknown error source", func(c *Config) { c.ErrorModel.Source = "oracle" }, true},
		{"File source without file", func(c *Config) { c.ErrorModel.Source = "file" }, true},
		{"None source without variance", func(c *Config) { c.ErrorModel.MeasurementVariance = 0 }, true},
		{"Value column on coordinates", func(c *Config) { c.Observations.ValueColumns = []int{1} }, true},
		{"Simulator without command", func(c *Config) {
			c.Simulator = &Simulator{SteeringFile: "run.cas", ResultsOutput: "out.txt"}
			applyDefaults(c)
		}, true},
		{"Valid simulator", func(c *Config) {
			c.Simulator = &Simulator{Command: "run.sh", SteeringFile: "run.cas", ResultsOutput: "out.txt"}
			applyDefaults(c)
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfigYAML parses a Config from YAML bytes, fills in defaults and validates it.
func ParseConfigYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ParseConfigYAMLString parses a Config from a YAML string and validates it.
func ParseConfigYAMLString(yamlText string) (*Config, error) {
	return ParseConfigYAML([]byte(yamlText))
}

// Defaults mirror the reference Telemac campaign.
const (
	DefaultLogLevel        = "info"
	DefaultSampleSize      = 10000
	DefaultNugget          = 2e-4
	DefaultRestarts        = 10
	DefaultDSize           = 1000
	DefaultExplorationSize = 100000
	DefaultStrategy        = "RE"
	DefaultWeight          = 0.5
	DefaultErrorSource     = "loocv"
	DefaultValueFormat     = "%s = %.1fD0"
	DefaultDecimals        = 1
	DefaultResultsKey      = "RESULTS FILE"
	DefaultResultsExt      = "slf"
	DefaultProcessors      = 4
	DefaultVariable        = "VELOCITY"
	DefaultRunPrefix       = "PC"
)

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Prior.SampleSize == 0 {
		cfg.Prior.SampleSize = DefaultSampleSize
	}
	if cfg.Surrogate.Nugget == 0 {
		cfg.Surrogate.Nugget = DefaultNugget
	}
	if cfg.Surrogate.Restarts == 0 {
		cfg.Surrogate.Restarts = DefaultRestarts
	}
	if cfg.ActiveLearning.DSize == 0 {
		cfg.ActiveLearning.DSize = DefaultDSize
	}
	if cfg.ActiveLearning.ExplorationSize == 0 {
		cfg.ActiveLearning.ExplorationSize = DefaultExplorationSize
	}
	if cfg.ActiveLearning.Strategy == "" {
		cfg.ActiveLearning.Strategy = DefaultStrategy
	}
	if cfg.ActiveLearning.Weight == 0 {
		cfg.ActiveLearning.Weight = DefaultWeight
	}
	if cfg.ErrorModel.Source == "" {
		cfg.ErrorModel.Source = DefaultErrorSource
	}
	if len(cfg.Observations.ValueColumns) == 0 {
		cfg.Observations.ValueColumns = []int{2, 3}
	}
	if cfg.Paths.Results == "" {
		cfg.Paths.Results = "results"
	}

	sim := cfg.Simulator
	if sim == nil {
		return
	}
	if sim.ValueFormat == "" {
		sim.ValueFormat = DefaultValueFormat
	}
	if sim.Decimals == 0 {
		sim.Decimals = DefaultDecimals
	}
	if sim.ResultsKey == "" {
		sim.ResultsKey = DefaultResultsKey
	}
	if sim.ResultsExt == "" {
		sim.ResultsExt = DefaultResultsExt
	}
	if sim.Processors == 0 {
		sim.Processors = DefaultProcessors
	}
	if len(sim.ResultColumns) == 0 {
		sim.ResultColumns = []int{2, 3}
	}
	if sim.Variable == "" {
		sim.Variable = DefaultVariable
	}
	if sim.RunPrefix == "" {
		sim.RunPrefix = DefaultRunPrefix
	}
}

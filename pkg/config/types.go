package config

// Config represents a calibration campaign
type Config struct {
	LogLevel       string           `yaml:"log_level"`
	Seed           int64            `yaml:"seed"`
	IterationLimit int              `yaml:"iteration_limit"`
	Parameters     []Parameter      `yaml:"parameters"`
	Prior          Prior            `yaml:"prior"`
	Surrogate      Surrogate        `yaml:"surrogate"`
	ActiveLearning ActiveLearning   `yaml:"active_learning"`
	ErrorModel     ErrorModelConfig `yaml:"error_model"`
	Observations   Observations     `yaml:"observations"`
	Paths          Paths            `yaml:"paths"`
	Simulator      *Simulator       `yaml:"simulator,omitempty"`
}

// Parameter is one calibration parameter with its uniform prior range
type Parameter struct {
	Name               string    `yaml:"name"`
	Min                float64   `yaml:"min"`
	Max                float64   `yaml:"max"`
	InitialLengthScale float64   `yaml:"initial_length_scale,omitempty"`
	LengthScaleBounds  []float64 `yaml:"length_scale_bounds,omitempty"`
}

// Prior configures the prior ensemble
type Prior struct {
	SampleSize int `yaml:"sample_size"`
	// EnsembleFile optionally points to a stored ensemble to reuse instead of sampling
	EnsembleFile string `yaml:"ensemble_file,omitempty"`
}

// Surrogate configures the Gaussian process emulators
type Surrogate struct {
	Nugget   float64 `yaml:"nugget"`
	Restarts int     `yaml:"restarts"`
	Workers  int     `yaml:"workers"`
}

// ActiveLearning configures candidate exploration and selection
type ActiveLearning struct {
	DSize           int     `yaml:"d_size"`
	ExplorationSize int     `yaml:"exploration_size"`
	Strategy        string  `yaml:"strategy"` // RE, BME or weighted
	Weight          float64 `yaml:"weight"`   // RE weight of the weighted strategy
	Workers         int     `yaml:"workers"`
}

// ErrorModelConfig configures the likelihood variances
type ErrorModelConfig struct {
	Source              string  `yaml:"source"` // loocv, file or none
	File                string  `yaml:"file,omitempty"`
	MeasurementVariance float64 `yaml:"measurement_variance"`
}

// Observations configures the measured data file
type Observations struct {
	File         string `yaml:"file"`
	ValueColumns []int  `yaml:"value_columns"`
}

// Paths holds the campaign output directories
type Paths struct {
	Results     string `yaml:"results"`
	Simulations string `yaml:"simulations"`
	Plot        string `yaml:"plot,omitempty"`
}

// Simulator configures the external simulator process
type Simulator struct {
	Command       string `yaml:"command"`
	SteeringFile  string `yaml:"steering_file"`
	ParameterFile string `yaml:"parameter_file"`
	ValueFormat   string `yaml:"value_format"`
	Decimals      int    `yaml:"decimals"`
	ResultsKey    string `yaml:"results_key"`
	ResultsPrefix string `yaml:"results_prefix"`
	ResultsExt    string `yaml:"results_ext"`
	// ResultsOutput is the table the simulator (or its post-processor) writes
	// for each run; {label} is replaced by the run label
	ResultsOutput string `yaml:"results_output"`
	// PostCommand optionally extracts ResultsOutput from the raw results file;
	// {label} and {results} are replaced by the run label and results file name
	PostCommand   string `yaml:"post_command,omitempty"`
	WorkDir       string `yaml:"work_dir,omitempty"`
	Processors    int    `yaml:"processors"`
	ResultColumns []int  `yaml:"result_columns"`
	Variable      string `yaml:"variable"`
	RunPrefix     string `yaml:"run_prefix"`
}

// LengthScaleBoundsOrDefault returns the configured bounds, or the default derived from
// the prior range: the range itself when it is strictly positive, otherwise
// [span/100, span].
func (p Parameter) LengthScaleBoundsOrDefault() (lo, hi float64) {
	if len(p.LengthScaleBounds) == 2 {
		return p.LengthScaleBounds[0], p.LengthScaleBounds[1]
	}
	if p.Min > 0 {
		return p.Min, p.Max
	}
	span := p.Max - p.Min
	return span / 100, span
}

// InitialLengthScaleOrDefault returns the configured initial length-scale or
// the midpoint of the bounds.
func (p Parameter) InitialLengthScaleOrDefault() float64 {
	if p.InitialLengthScale > 0 {
		return p.InitialLengthScale
	}
	lo, hi := p.LengthScaleBoundsOrDefault()
	return (lo + hi) / 2
}

package metrics

import (
	"strconv"
	"time"
)

// Campaign metric names
const (
	MetricBME               = "bme"
	MetricRE                = "re"
	MetricFitSeconds        = "fit_seconds"
	MetricSelectionSeconds  = "selection_seconds"
	MetricEvaluationSeconds = "evaluation_seconds"
	MetricPoolSize          = "pool_size"
	MetricErrorVariance     = "error_variance"
	MetricLOOCV             = "loocv_error"
)

// RecordScores records the belief scores of an iteration
func RecordScores(collector *Collector, iteration int, bme, re float64) {
	now := time.Now()
	collector.Record(MetricBME, iteration, bme, now, nil)
	collector.Record(MetricRE, iteration, re, now, nil)
}

// RecordDuration records a stage duration in seconds
func RecordDuration(collector *Collector, name string, iteration int, d time.Duration) {
	collector.RecordNow(name, iteration, d.Seconds(), nil)
}

// RecordPoolSize records the number of active-learning candidates scored
func RecordPoolSize(collector *Collector, iteration, size int) {
	collector.RecordNow(MetricPoolSize, iteration, float64(size), nil)
}

// RecordPerOutput records one value per output dimension, labelled by output index
func RecordPerOutput(collector *Collector, name string, iteration int, vals []float64) {
	now := time.Now()
	for m, v := range vals {
		collector.Record(name, iteration, v, now, OutputLabels(m))
	}
}

// OutputLabels creates a labels map for an output dimension
func OutputLabels(output int) map[string]string {
	return map[string]string{
		"output": strconv.Itoa(output),
	}
}

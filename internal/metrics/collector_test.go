package metrics

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCollectorRecord(t *testing.T) {
	c := NewCollector()
	now := time.Now()
	c.Record(MetricRE, 0, 0.5, now, nil)
	c.Record(MetricRE, 1, 0.75, now, nil)

	series := c.Series(MetricRE, nil)
	if len(series) != 2 {
		t.Fatalf("expected 2 points, got %d", len(series))
	}
	if series[1].Iteration != 1 || series[1].Value != 0.75 {
		t.Errorf("unexpected second point %+v", series[1])
	}
	if diff := cmp.Diff([]float64{0.5, 0.75}, c.Values(MetricRE, nil)); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if c.Series("missing", nil) != nil {
		t.Error("expected nil series for unknown metric")
	}
}

func TestCollectorLabels(t *testing.T) {
	c := NewCollector()
	RecordPerOutput(c, MetricLOOCV, 0, []float64{0.1, 0.2})
	RecordPerOutput(c, MetricLOOCV, 1, []float64{0.3, 0.4})

	if diff := cmp.Diff([]float64{0.2, 0.4}, c.Values(MetricLOOCV, OutputLabels(1))); diff != "" {
		t.Errorf("output 1 mismatch (-want +got):\n%s", diff)
	}
	if c.Values(MetricLOOCV, nil) != nil {
		t.Error("unlabelled series should be empty")
	}

	// Returned labels must be copies
	series := c.Series(MetricLOOCV, OutputLabels(0))
	series[0].Labels["output"] = "9"
	if got := c.Series(MetricLOOCV, OutputLabels(0))[0].Labels["output"]; got != "0" {
		t.Errorf("labels leaked from collector, got %q", got)
	}
}

func TestCollectorAggregate(t *testing.T) {
	c := NewCollector()
	for i, v := range []float64{4, 1, 3, 2} {
		c.RecordNow(MetricPoolSize, i, v, nil)
	}

	agg := c.Aggregate(MetricPoolSize, nil)
	if agg == nil {
		t.Fatal("expected aggregation")
	}
	if agg.Count != 4 || agg.Sum != 10 || agg.Min != 1 || agg.Max != 4 || agg.Mean != 2.5 {
		t.Errorf("unexpected aggregation %+v", agg)
	}
	if math.Abs(agg.StdDev-math.Sqrt(5.0/3.0)) > 1e-12 {
		t.Errorf("expected sample std dev %f, got %f", math.Sqrt(5.0/3.0), agg.StdDev)
	}
	if agg.P95 < agg.P50 || agg.P95 > agg.Max {
		t.Errorf("percentiles out of order: p50=%f p95=%f", agg.P50, agg.P95)
	}

	if c.Aggregate("missing", nil) != nil {
		t.Error("expected nil aggregation for unknown metric")
	}
}

func TestCollectorSummary(t *testing.T) {
	c := NewCollector()
	c.Start()
	RecordScores(c, 0, 0.01, 0.3)
	RecordScores(c, 1, 0.02, 0.6)
	RecordDuration(c, MetricFitSeconds, 0, 1500*time.Millisecond)
	RecordPoolSize(c, 0, 999)
	RecordPerOutput(c, MetricLOOCV, 0, []float64{1})
	c.Stop()

	s := c.Summary()
	if s.Duration < 0 {
		t.Errorf("negative duration %v", s.Duration)
	}
	if diff := cmp.Diff([]float64{0.3, 0.6}, s.Metrics[MetricRE]); diff != "" {
		t.Errorf("re series mismatch (-want +got):\n%s", diff)
	}
	if s.Aggregations[MetricFitSeconds].Max != 1.5 {
		t.Errorf("expected 1.5 fit seconds, got %f", s.Aggregations[MetricFitSeconds].Max)
	}
	if _, ok := s.Metrics[MetricLOOCV]; ok {
		t.Error("labelled-only metrics should not appear in the summary")
	}

	want := []string{MetricBME, MetricFitSeconds, MetricLOOCV, MetricPoolSize, MetricRE}
	if diff := cmp.Diff(want, c.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectorConcurrentRecord(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.RecordNow(MetricBME, i, 1, nil)
			}
		}()
	}
	wg.Wait()
	if n := len(c.Values(MetricBME, nil)); n != 800 {
		t.Fatalf("expected 800 points, got %d", n)
	}
}

package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Point is one recorded value of a metric
type Point struct {
	Iteration int
	Timestamp time.Time
	Name      string
	Value     float64
	Labels    map[string]string
}

// Aggregation holds summary statistics of a metric series
type Aggregation struct {
	Count  int
	Sum    float64
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	P50    float64
	P95    float64
}

// Summary is a snapshot of everything collected during a campaign
type Summary struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Metrics      map[string][]float64
	Aggregations map[string]*Aggregation
}

// Collector collects per-iteration metrics of a calibration campaign
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	// metric name -> labels -> points
	series map[string]map[string][]*Point
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		series:    make(map[string]map[string][]*Point),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a metric value for an iteration
func (c *Collector) Record(name string, iteration int, value float64, timestamp time.Time, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	if c.series[name] == nil {
		c.series[name] = make(map[string][]*Point)
	}
	c.series[name][key] = append(c.series[name][key], &Point{
		Iteration: iteration,
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
		Labels:    copyLabels(labels),
	})
}

// RecordNow records a metric value at the current time
func (c *Collector) RecordNow(name string, iteration int, value float64, labels map[string]string) {
	c.Record(name, iteration, value, time.Now(), labels)
}

// Series returns a copy of the points of one metric, in recording order
func (c *Collector) Series(name string, labels map[string]string) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.series[name][labelKey(labels)]
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = *p
		out[i].Labels = copyLabels(p.Labels)
	}
	return out
}

// Values returns the recorded values of one metric
func (c *Collector) Values(name string, labels map[string]string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return values(c.series[name][labelKey(labels)])
}

// Aggregate returns summary statistics of one metric, or nil when nothing was recorded
func (c *Collector) Aggregate(name string, labels map[string]string) *Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return aggregate(values(c.series[name][labelKey(labels)]))
}

// Summary returns all unlabelled series and their aggregations
func (c *Collector) Summary() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	s := &Summary{
		StartTime:    c.startTime,
		EndTime:      end,
		Duration:     end.Sub(c.startTime),
		Metrics:      make(map[string][]float64),
		Aggregations: make(map[string]*Aggregation),
	}
	for name, byLabel := range c.series {
		vals := values(byLabel[""])
		if len(vals) == 0 {
			continue
		}
		s.Metrics[name] = vals
		s.Aggregations[name] = aggregate(vals)
	}
	return s
}

// Names returns the recorded metric names in sorted order
func (c *Collector) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func values(points []*Point) []float64 {
	if len(points) == 0 {
		return nil
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func aggregate(vals []float64) *Aggregation {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	agg := &Aggregation{
		Count: len(sorted),
		Sum:   floats.Sum(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.50, stat.LinInterp, sorted, nil),
		P95:   stat.Quantile(0.95, stat.LinInterp, sorted, nil),
	}
	if len(sorted) > 1 {
		agg.StdDev = stat.StdDev(sorted, nil)
	}
	return agg
}

// labelKey creates a key from labels for map lookup
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

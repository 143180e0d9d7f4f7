package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregation is a distribution summary over recorded mean latencies.
type Aggregation struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Summary is a point-in-time view of a collector.
type Summary struct {
	StartTime   time.Time               `json:"start_time"`
	EndTime     time.Time               `json:"end_time,omitempty"`
	Duration    time.Duration           `json:"duration_ns"`
	Evaluations int                     `json:"evaluations"`
	Failures    int                     `json:"failures"`
	Samples     int                     `json:"samples"`
	Latency     *Aggregation            `json:"latency,omitempty"`
	ByParameter map[string]*Aggregation `json:"by_parameter,omitempty"`
}

// Collector tallies evaluation outcomes during one tuning run. It is safe
// for concurrent use so the daemon can read it while the run progresses.
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	evaluations int
	failures    int
	samples     int

	// parameter label -> successful mean latencies
	series map[string][]float64
}

// NewCollector creates a new collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		series:    make(map[string][]float64),
	}
}

// Start marks the start of collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// RecordEvaluation records the outcome of one benchmarked candidate under
// the given parameter label.
func (c *Collector) RecordEvaluation(label string, stats ProfileStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evaluations++
	c.samples += stats.Count
	if !stats.Successful() {
		c.failures++
		return
	}
	c.series[label] = append(c.series[label], stats.AverageLatency)
}

// Aggregation returns the latency distribution for one label, or for every
// label when label is empty. Nil when nothing was recorded.
func (c *Collector) Aggregation(label string) *Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if label != "" {
		return calculateAggregation(c.series[label])
	}
	return calculateAggregation(c.allValuesUnsafe())
}

// Labels returns the recorded parameter labels in sorted order
func (c *Collector) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	labels := make([]string, 0, len(c.series))
	for l := range c.series {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// GetSummary returns a summary of everything collected so far
func (c *Collector) GetSummary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	summary := Summary{
		StartTime:   c.startTime,
		EndTime:     c.endTime,
		Duration:    end.Sub(c.startTime),
		Evaluations: c.evaluations,
		Failures:    c.failures,
		Samples:     c.samples,
		Latency:     calculateAggregation(c.allValuesUnsafe()),
		ByParameter: make(map[string]*Aggregation, len(c.series)),
	}
	for label, values := range c.series {
		summary.ByParameter[label] = calculateAggregation(values)
	}
	return summary
}

// Clear resets the collector
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.series = make(map[string][]float64)
	c.evaluations = 0
	c.failures = 0
	c.samples = 0
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// allValuesUnsafe flattens the series (caller must hold lock)
func (c *Collector) allValuesUnsafe() []float64 {
	var all []float64
	for _, values := range c.series {
		all = append(all, values...)
	}
	return all
}

func calculateAggregation(values []float64) *Aggregation {
	if len(values) == 0 {
		return nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return &Aggregation{
		Count: int64(len(sorted)),
		Sum:   sum,
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / float64(len(sorted)),
		P50:   calculatePercentile(sorted, 0.50),
		P95:   calculatePercentile(sorted, 0.95),
		P99:   calculatePercentile(sorted, 0.99),
	}
}

// calculatePercentile interpolates the percentile from a sorted slice
func calculatePercentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0.0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	index := p * float64(len(sortedValues)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sortedValues) {
		return sortedValues[len(sortedValues)-1]
	}

	weight := index - float64(lower)
	return sortedValues[lower]*(1-weight) + sortedValues[upper]*weight
}

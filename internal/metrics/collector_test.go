package metrics

import (
	"math"
	"sync"
	"testing"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatalf("expected non-nil collector")
	}
	if c.Aggregation("") != nil {
		t.Fatalf("expected nil aggregation before any record")
	}
}

func TestCollectorRecordEvaluation(t *testing.T) {
	c := NewCollector()
	c.Start()

	c.RecordEvaluation("temperature", ProfileStats{Count: 2, AverageLatency: 200})
	c.RecordEvaluation("temperature", ProfileStats{Count: 2, AverageLatency: 100})
	c.RecordEvaluation("top_k", ProfileStats{Count: 2, AverageLatency: 300})
	c.RecordEvaluation("top_k", ProfileStats{})
	c.Stop()

	summary := c.GetSummary()
	if summary.Evaluations != 4 || summary.Failures != 1 || summary.Samples != 6 {
		t.Fatalf("unexpected counters %+v", summary)
	}
	if summary.Latency == nil || summary.Latency.Count != 3 || summary.Latency.Mean != 200 {
		t.Fatalf("unexpected overall latency %+v", summary.Latency)
	}

	agg := c.Aggregation("temperature")
	if agg == nil || agg.Min != 100 || agg.Max != 200 || agg.P50 != 150 {
		t.Fatalf("unexpected temperature aggregation %+v", agg)
	}
	if len(summary.ByParameter) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(summary.ByParameter))
	}
	if labels := c.Labels(); len(labels) != 2 || labels[0] != "temperature" {
		t.Fatalf("unexpected labels %v", labels)
	}
	if summary.Duration < 0 {
		t.Fatalf("negative duration")
	}
}

func TestCollectorClear(t *testing.T) {
	c := NewCollector()
	c.RecordEvaluation("x", ProfileStats{Count: 1, AverageLatency: 5})
	c.Clear()
	if s := c.GetSummary(); s.Evaluations != 0 || s.Latency != nil {
		t.Fatalf("expected empty collector after clear, got %+v", s)
	}
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordEvaluation("p", ProfileStats{Count: 1, AverageLatency: float64(i + 1)})
			_ = c.GetSummary()
		}(i)
	}
	wg.Wait()
	if got := c.Aggregation("p").Count; got != 10 {
		t.Fatalf("expected 10 values, got %d", got)
	}
}

func TestCalculatePercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}
	if got := calculatePercentile(values, 0.5); got != 30 {
		t.Fatalf("expected p50 30, got %f", got)
	}
	if got := calculatePercentile(values, 0.95); math.Abs(got-48) > 1e-9 {
		t.Fatalf("expected p95 48, got %f", got)
	}
	if got := calculatePercentile([]float64{7}, 0.99); got != 7 {
		t.Fatalf("expected single value, got %f", got)
	}
}

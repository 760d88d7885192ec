package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCollectorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(Options{Namespace: "testns", Registerer: reg})

	c.ObserveHit()
	c.ObserveHit()
	c.ObserveMiss()
	c.ObserveEviction()

	if got := counterValue(t, c.hits); got != 2 {
		t.Fatalf("hits = %v, want 2", got)
	}
	if got := counterValue(t, c.misses); got != 1 {
		t.Fatalf("misses = %v, want 1", got)
	}
	if got := counterValue(t, c.evictions); got != 1 {
		t.Fatalf("evictions = %v, want 1", got)
	}
}

func TestCollectorObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(Options{Namespace: "testns", Registerer: reg})

	c.ObserveOperation("get", 1500)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "testns_cache_operation_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Fatalf("latency histogram not registered")
	}
}

func TestNewDefaultsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(Options{Registerer: reg})
	if c == nil {
		t.Fatal("New returned nil")
	}
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewReconcile_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcile(reg)

	m.Ingested.WithLabelValues("pushed").Inc()
	m.Duplicates.Inc()
	m.Promotions.Add(2)

	if got := testutil.ToFloat64(m.Ingested.WithLabelValues("pushed")); got != 1 {
		t.Errorf("Expected 1 pushed record, got %v", got)
	}
	if got := testutil.ToFloat64(m.Promotions); got != 2 {
		t.Errorf("Expected 2 promotions, got %v", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 metric series, got %d", n)
	}
}

func TestNewReconcile_NilRegistererIsIndependent(t *testing.T) {
	a := NewReconcile(nil)
	b := NewReconcile(nil)
	a.Duplicates.Inc()
	if testutil.ToFloat64(b.Duplicates) != 0 {
		t.Errorf("Expected counters to be independent")
	}
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reconcile holds the counters for transcript reconciliation.
type Reconcile struct {
	Ingested       *prometheus.CounterVec
	Duplicates     prometheus.Counter
	Promotions     prometheus.Counter
	DecryptFailure prometheus.Counter
	LoadsRejected  prometheus.Counter
}

// NewReconcile creates the counters and registers them on reg.
// A nil reg leaves them unregistered, which is what tests usually want.
func NewReconcile(reg prometheus.Registerer) *Reconcile {
	m := &Reconcile{
		Ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherroom",
			Name:      "records_ingested_total",
			Help:      "Records inserted into a transcript, by provenance.",
		}, []string{"provenance"}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherroom",
			Name:      "records_duplicate_total",
			Help:      "Incoming records discarded as exact duplicates.",
		}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherroom",
			Name:      "records_promoted_total",
			Help:      "Optimistic records that took over a durable id.",
		}),
		DecryptFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherroom",
			Name:      "records_decrypt_failures_total",
			Help:      "Records dropped because they failed to decode or decrypt.",
		}),
		LoadsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherroom",
			Name:      "history_loads_rejected_total",
			Help:      "History loads rejected because one was already in flight.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Ingested, m.Duplicates, m.Promotions, m.DecryptFailure, m.LoadsRejected)
	}
	return m
}

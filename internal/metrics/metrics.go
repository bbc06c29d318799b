package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Negotiation operations by name and outcome code ("ok" or an error code).
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_operations_total",
			Help: "Negotiation operations by operation and result code.",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otc_operation_duration_seconds",
			Help:    "Duration of negotiation operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"operation"},
	)

	// Lifecycle transitions of quote requests (to = expired | cancelled | filled).
	RequestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_quote_request_transitions_total",
			Help: "Quote request status transitions.",
		},
		[]string{"to"},
	)

	SignatureChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_signature_checks_total",
			Help: "Signature authentications by result (ok | invalid | reused).",
		},
		[]string{"result"},
	)

	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otc_settlement_duration_seconds",
			Help:    "Duration of settlement collaborator calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call", "result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_events_published_total",
			Help: "Domain events published to brokers.",
		},
		[]string{"broker", "event_type", "result"},
	)

	SecretsCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_secrets_cache_access_total",
			Help: "Number of cache hits/misses in the admin secret cache.",
		},
		[]string{"result"}, // hit | miss
	)
)

// ObserveDuration records time since start on a histogram or summary.
func ObserveDuration(v prometheus.Collector, start time.Time, labels ...string) {
	d := time.Since(start).Seconds()
	switch m := v.(type) {
	case *prometheus.HistogramVec:
		m.WithLabelValues(labels...).Observe(d)
	case *prometheus.SummaryVec:
		m.WithLabelValues(labels...).Observe(d)
	}
}

func IncOperation(operation, result string) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
}

func IncTransition(to string) {
	RequestTransitions.WithLabelValues(to).Inc()
}

func IncSignature(result string) {
	SignatureChecks.WithLabelValues(result).Inc()
}

func IncEvent(broker, eventType, result string) {
	EventsPublished.WithLabelValues(broker, eventType, result).Inc()
}

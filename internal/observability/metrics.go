package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the ingestion pipeline.
type Metrics struct {
	EventsReceived  *prometheus.CounterVec // labels: source
	EventsAccepted  *prometheus.CounterVec // labels: source
	EventsDuplicate *prometheus.CounterVec // labels: source
	EventsDropped   *prometheus.CounterVec // labels: source, reason={unusable,suppressed}
	PollErrors      *prometheus.CounterVec // labels: source
	PersistErrors   prometheus.Counter
	RelayAttempts   prometheus.Counter
	RelayFailures   prometheus.Counter
	ExportFailures  prometheus.Counter
	MergedEvents    prometheus.Gauge
	SeenIDs         prometheus.Gauge
	RealtimeUp      prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EventsReceived,
		m.EventsAccepted,
		m.EventsDuplicate,
		m.EventsDropped,
		m.PollErrors,
		m.PersistErrors,
		m.RelayAttempts,
		m.RelayFailures,
		m.ExportFailures,
		m.MergedEvents,
		m.SeenIDs,
		m.RealtimeUp,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "events_received_total",
			Help:      "Candidate events handed to the coordinator, by source.",
		}, []string{"source"}),
		EventsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "events_accepted_total",
			Help:      "Events accepted as new, by source.",
		}, []string{"source"}),
		EventsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "events_duplicate_total",
			Help:      "Events rejected because their id was already seen, by source.",
		}, []string{"source"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "events_dropped_total",
			Help:      "Payloads dropped before acceptance, by source and reason.",
		}, []string{"source", "reason"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "poll_errors_total",
			Help:      "Failed poll cycles or subscriptions, by source.",
		}, []string{"source"}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "persist_errors_total",
			Help:      "Failed reads or writes of the persisted seen-id record.",
		}),
		RelayAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "relay_attempts_total",
			Help:      "Events handed to the broadcast relay.",
		}),
		RelayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "relay_failures_total",
			Help:      "Relay calls that failed or were dropped.",
		}),
		ExportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "live_alerts",
			Name:      "export_failures_total",
			Help:      "Accepted events that could not be exported.",
		}),
		MergedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "live_alerts",
			Name:      "merged_events",
			Help:      "Events currently held in the merged list.",
		}),
		SeenIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "live_alerts",
			Name:      "seen_ids",
			Help:      "Event ids held in the in-memory dedup set.",
		}),
		RealtimeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "live_alerts",
			Name:      "realtime_connected",
			Help:      "1 while the realtime subscription is active.",
		}),
	}
}

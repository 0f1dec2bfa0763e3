// Package metrics instruments the reconciliation engine with Prometheus
// counters. A nil *Metrics is valid and records nothing, so library users
// who do not scrape can skip wiring it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	eventsProcessed    *prometheus.CounterVec
	malformedPayloads  prometheus.Counter
	unknownEventTypes  prometheus.Counter
	reconnects         prometheus.Counter
	citationsMerged    prometheus.Counter
	citationsDuplicate prometheus.Counter
	connectionReady    prometheus.Gauge
}

// New registers the engine metrics on the given registerer. Pass
// prometheus.DefaultRegisterer for process-wide metrics or a fresh registry
// in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "events_processed_total",
			Help:      "Protocol events dispatched by the reconciliation controller, by type.",
		}, []string{"type"}),
		malformedPayloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "malformed_payloads_total",
			Help:      "Socket frames dropped because the payload failed to decode.",
		}),
		unknownEventTypes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "unknown_event_types_total",
			Help:      "Socket frames dropped because the type tag is outside the protocol.",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "reconnects_total",
			Help:      "User-initiated socket reconnects.",
		}),
		citationsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "citations_merged_total",
			Help:      "Citations added to the store after annotation-id de-duplication.",
		}),
		citationsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_client",
			Name:      "citations_duplicate_total",
			Help:      "Citations dropped because their annotation id was already present.",
		}),
		connectionReady: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat_client",
			Name:      "connection_ready",
			Help:      "1 while the conversation socket is open and ready to send.",
		}),
	}
}

func (m *Metrics) EventProcessed(eventType string) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) MalformedPayload() {
	if m == nil {
		return
	}
	m.malformedPayloads.Inc()
}

func (m *Metrics) UnknownEventType() {
	if m == nil {
		return
	}
	m.unknownEventTypes.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) CitationsMerged(added, duplicates int) {
	if m == nil {
		return
	}
	m.citationsMerged.Add(float64(added))
	m.citationsDuplicate.Add(float64(duplicates))
}

func (m *Metrics) SetConnectionReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.connectionReady.Set(1)
	} else {
		m.connectionReady.Set(0)
	}
}

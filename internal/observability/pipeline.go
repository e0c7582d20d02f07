package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DeliveryMetrics counts outbound delivery attempts and final outcomes.
// All methods are safe on a nil receiver.
type DeliveryMetrics struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	factory := promauto.With(registerer(reg))
	return &DeliveryMetrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Outbound delivery attempts by operation and result.",
		}, []string{"operation", "result"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "outcomes_total",
			Help:      "Final outcome of outbound deliveries.",
		}, []string{"operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Wall time of a delivery including retries.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
	}
}

func (m *DeliveryMetrics) Attempt(operation, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(operation, result).Inc()
}

func (m *DeliveryMetrics) Outcome(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// PipelineMetrics covers webhook intake and event orchestration.
type PipelineMetrics struct {
	webhooks      *prometheus.CounterVec
	orchestration *prometheus.CounterVec
	collaborators *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(registerer(reg))
	return &PipelineMetrics{
		webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Inbound webhook deliveries by provider, event type and outcome.",
		}, []string{"provider", "event_type", "outcome"}),
		orchestration: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "events_total",
			Help:      "Orchestrated domain events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		collaborators: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "collaborator_failures_total",
			Help:      "Non-fatal collaborator failures by collaborator.",
		}, []string{"collaborator"}),
	}
}

func (m *PipelineMetrics) Webhook(provider, eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhooks.WithLabelValues(provider, eventType, outcome).Inc()
}

func (m *PipelineMetrics) Orchestrated(kind, outcome string) {
	if m == nil {
		return
	}
	m.orchestration.WithLabelValues(kind, outcome).Inc()
}

func (m *PipelineMetrics) CollaboratorFailed(name string) {
	if m == nil {
		return
	}
	m.collaborators.WithLabelValues(name).Inc()
}

// QueueMetrics counts entries dropped from capped job queues.
type QueueMetrics struct {
	dropped *prometheus.CounterVec
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	factory := promauto.With(registerer(reg))
	return &QueueMetrics{
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Oldest queue entries discarded because a topic reached capacity.",
		}, []string{"topic"}),
	}
}

func (m *QueueMetrics) Dropped(topic string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(topic).Add(float64(n))
}

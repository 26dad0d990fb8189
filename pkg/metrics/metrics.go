package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all application metrics. Helper methods are safe to call on
// a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	// Ingestion and campaign metrics
	RecipientsIngested  *prometheus.CounterVec
	CampaignTransitions *prometheus.CounterVec
	DispatchMessages    *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      *prometheus.CounterVec
	OutboxProcessingLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all application metrics on a dedicated registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		RecipientsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipients_ingested_total",
			Help:      "Recipient rows processed by ingestion, by mode and outcome",
		}, []string{"mode", "outcome"}),
		CampaignTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_transitions_total",
			Help:      "Campaign status transitions",
		}, []string{"from", "to"}),
		DispatchMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_messages_total",
			Help:      "Messages handed to the transport, by outcome",
		}, []string{"outcome"}),

		OutboxEventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox event attempts",
		}, []string{"event_type"}),
		OutboxProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing a batch of outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		RedisOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RecipientsIngested,
		m.CampaignTransitions,
		m.DispatchMessages,
		m.OutboxEventsProcessed,
		m.OutboxEventsFailed,
		m.OutboxProcessingLatency,
		m.DatabaseOperations,
		m.RedisOperations,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) DBOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.DatabaseOperations.WithLabelValues(operation, status(err)).Inc()
}

func (m *Metrics) RedisOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.RedisOperations.WithLabelValues(operation, status(err)).Inc()
}

// Ingested adds n rows for the given ingestion mode and outcome.
func (m *Metrics) Ingested(mode, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecipientsIngested.WithLabelValues(mode, outcome).Add(float64(n))
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.CampaignTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Dispatched(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DispatchMessages.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) OutboxProcessed() {
	if m == nil {
		return
	}
	m.OutboxEventsProcessed.Inc()
}

func (m *Metrics) OutboxFailed(eventType string) {
	if m == nil {
		return
	}
	m.OutboxEventsFailed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveOutboxBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.OutboxProcessingLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

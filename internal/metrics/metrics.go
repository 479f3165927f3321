// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	activeSessions      prometheus.Gauge
	subscriptions       prometheus.Gauge
	eventsPublished     *prometheus.CounterVec
	eventsDelivered     *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	messagesAccepted    *prometheus.CounterVec
	presenceTransitions *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_sessions_active",
			Help:      "Number of live websocket sessions.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_topics_active",
			Help:      "Number of broker topics with at least one local subscriber.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the broker, by type and outcome.",
		}, []string{"type", "outcome"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events queued on a session, by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events not delivered to a session, by reason.",
		}, []string{"reason"}),
		messagesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Message pipeline writes, by operation.",
		}, []string{"op"}),
		presenceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_transitions_total",
			Help:      "Presence status changes, by resulting status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.activeSessions,
			m.subscriptions,
			m.eventsPublished,
			m.eventsDelivered,
			m.eventsDropped,
			m.messagesAccepted,
			m.presenceTransitions,
			m.httpRequests,
			m.httpDuration,
		)
	}
	return m
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

func (m *Metrics) TopicOpened() {
	if m != nil {
		m.subscriptions.Inc()
	}
}

func (m *Metrics) TopicClosed() {
	if m != nil {
		m.subscriptions.Dec()
	}
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) EventDelivered(eventType string) {
	if m != nil {
		m.eventsDelivered.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) EventDropped(reason string) {
	if m != nil {
		m.eventsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageWritten(op string) {
	if m != nil {
		m.messagesAccepted.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) PresenceChanged(status string) {
	if m != nil {
		m.presenceTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

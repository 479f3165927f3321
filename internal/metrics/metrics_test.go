package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.EventPublished("typing", errors.New("x"))
		m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))

	m.EventPublished("message.created", nil)
	m.EventPublished("message.created", errors.New("redis down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("message.created", "error")))

	m.EventDropped("stale")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("stale")))
}

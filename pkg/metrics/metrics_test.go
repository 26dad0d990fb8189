package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DBOperation("insert", nil)
		m.Ingested("bulk", "added", 3)
		m.Transition("draft", "sending")
		m.OutboxFailed("campaign.dispatch")
		m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	m := New("test")

	m.Ingested("bulk", "added", 2)
	m.Ingested("bulk", "added", 1)
	m.Ingested("bulk", "duplicate", 0)
	m.DBOperation("tx", errors.New("boom"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecipientsIngested.WithLabelValues("bulk", "added")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RecipientsIngested.WithLabelValues("bulk", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("tx", "error")))
}

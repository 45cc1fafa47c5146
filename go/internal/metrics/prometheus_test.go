package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollectorRegistersLazily(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheus(reg, "")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestPrometheusCollectorEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.DraftStarted(3, 12)
	p.ClaimApplied()
	p.ClaimApplied()
	p.ClaimRejected("not your turn")
	p.TurnAdvanced()
	p.SeatsChanged(3, 2)
	p.DraftEnded("pool exhausted")
	p.ConnectionsChanged(4)

	assert.InDelta(t, 2, testutil.ToFloat64(p.claims.WithLabelValues("applied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.claims.WithLabelValues("not your turn")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.turnsAdvanced), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(p.seats), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(p.connectedSeats), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(p.poolSize), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.draftsStarted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.draftsEnded.WithLabelValues("pool exhausted")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(p.wsConnections), 0)
}

func TestPrometheusCollectorOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordEventProcessed("assignment.recorded", true, 10*time.Millisecond)
	p.RecordEventProcessed("assignment.recorded", false, 10*time.Millisecond)
	p.RecordPublishAttempt("assignment.recorded", 1, false)
	p.RecordPublishAttempt("assignment.recorded", 2, true)
	p.RecordBatchProcessed(5, time.Second)
	p.RecordOutboxLag(7)
	p.RecordEventDropped("draft.ended")

	assert.InDelta(t, 1, testutil.ToFloat64(p.eventsProcessed.WithLabelValues("assignment.recorded", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.eventsProcessed.WithLabelValues("assignment.recorded", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.publishAttempts.WithLabelValues("assignment.recorded", "true")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(p.outboxLag), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.eventsDropped.WithLabelValues("draft.ended")), 0)

}

package metrics

import (
	"sync"
	"time"

	"github.com/mcdev12/staffdraft/go/internal/draft/engine"
	"github.com/mcdev12/staffdraft/go/internal/draft/outbox"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector records draft engine and outbox metrics.
//
// Collectors are created and registered on first use, so constructing one
// that is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// engine
	claims         *prometheus.CounterVec
	turnsAdvanced  prometheus.Counter
	seats          prometheus.Gauge
	connectedSeats prometheus.Gauge
	draftsStarted  prometheus.Counter
	draftsEnded    *prometheus.CounterVec
	poolSize       prometheus.Gauge
	wsConnections  prometheus.Gauge

	// outbox
	eventsProcessed *prometheus.CounterVec
	publishLatency  *prometheus.HistogramVec
	batchSize       prometheus.Histogram
	outboxLag       prometheus.Gauge
	publishAttempts *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
}

var (
	_ engine.Metrics          = (*PrometheusCollector)(nil)
	_ outbox.MetricsCollector = (*PrometheusCollector)(nil)
)

// NewPrometheus creates a collector. A nil registerer means
// prometheus.DefaultRegisterer and an empty namespace means "staffdraft".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "staffdraft"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.claims = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "draft",
			Name:      "claims_total",
			Help:      "Claims by result (applied or the rejection reason).",
		}, []string{"result"})
		p.turnsAdvanced = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "draft",
			Name:      "turns_advanced_total",
			Help:      "Turn changes, including defers and hand-offs.",
		})
		p.seats = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "draft",
			Name:      "seats",
			Help:      "Registered seats.",
		})
		p.connectedSeats = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "draft",
			Name:      "seats_connected",
			Help:      "Seats with a live connection.",
		})
		p.draftsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "draft",
			Name:      "started_total",
			Help:      "Drafts started.",
		})
		p.draftsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "draft",
			Name:      "ended_total",
			Help:      "Drafts ended by reason.",
		}, []string{"reason"})
		p.poolSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "draft",
			Name:      "pool_size",
			Help:      "Consultants in the pool when the current draft started.",
		})
		p.wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket connections.",
		})

		p.eventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Publish calls by event type and result.",
		}, []string{"event_type", "result"})
		p.publishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "outbox",
			Name:      "publish_duration_seconds",
			Help:      "Publish latency by event type.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"event_type"})
		p.batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Events published per pass.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		})
		p.outboxLag = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "outbox",
			Name:      "pending_events",
			Help:      "Events waiting in the outbox after the last pass.",
		})
		p.publishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "outbox",
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by event type and whether it was a retry.",
		}, []string{"event_type", "retry"})
		p.eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "outbox",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the outbox was full or retries ran out.",
		}, []string{"event_type"})

		p.reg.MustRegister(
			p.claims,
			p.turnsAdvanced,
			p.seats,
			p.connectedSeats,
			p.draftsStarted,
			p.draftsEnded,
			p.poolSize,
			p.wsConnections,
			p.eventsProcessed,
			p.publishLatency,
			p.batchSize,
			p.outboxLag,
			p.publishAttempts,
			p.eventsDropped,
		)
	})
}

func (p *PrometheusCollector) ClaimApplied() {
	p.ensureRegistered()
	p.claims.WithLabelValues("applied").Inc()
}

// ClaimRejected counts a rejection under its reason.
func (p *PrometheusCollector) ClaimRejected(reason string) {
	p.ensureRegistered()
	p.claims.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) TurnAdvanced() {
	p.ensureRegistered()
	p.turnsAdvanced.Inc()
}

// SeatsChanged sets the seat gauges.
func (p *PrometheusCollector) SeatsChanged(total, connected int) {
	p.ensureRegistered()
	p.seats.Set(float64(total))
	p.connectedSeats.Set(float64(connected))
}

// DraftStarted counts the draft and records the starting pool size.
func (p *PrometheusCollector) DraftStarted(seats, pool int) {
	p.ensureRegistered()
	p.draftsStarted.Inc()
	p.seats.Set(float64(seats))
	p.poolSize.Set(float64(pool))
}

func (p *PrometheusCollector) DraftEnded(reason string) {
	p.ensureRegistered()
	p.draftsEnded.WithLabelValues(reason).Inc()
}

// ConnectionsChanged sets the open websocket connection gauge.
func (p *PrometheusCollector) ConnectionsChanged(open int) {
	p.ensureRegistered()
	p.wsConnections.Set(float64(open))
}

// RecordEventProcessed counts a publish result and observes its latency.
func (p *PrometheusCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "failure"
	}
	p.eventsProcessed.WithLabelValues(eventType, result).Inc()
	p.publishLatency.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordBatchProcessed(count int, _ time.Duration) {
	p.ensureRegistered()
	p.batchSize.Observe(float64(count))
}

func (p *PrometheusCollector) RecordOutboxLag(lag int) {
	p.ensureRegistered()
	p.outboxLag.Set(float64(lag))
}

// RecordPublishAttempt counts publish attempts, split into first tries and
// retries.
func (p *PrometheusCollector) RecordPublishAttempt(eventType string, attempt int, _ bool) {
	p.ensureRegistered()
	retry := "false"
	if attempt > 1 {
		retry = "true"
	}
	p.publishAttempts.WithLabelValues(eventType, retry).Inc()
}

func (p *PrometheusCollector) RecordEventDropped(eventType string) {
	p.ensureRegistered()
	p.eventsDropped.WithLabelValues(eventType).Inc()
}

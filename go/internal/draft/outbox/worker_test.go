package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testConfig() Config {
	return Config{
		Debounce:      500 * time.Millisecond,
		BatchSize:     2,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		MaxRetryDelay: time.Second,
	}
}

type workerHarness struct {
	ctx     context.Context
	cancel  context.CancelFunc
	clock   *clockwork.FakeClock
	store   *MemoryStore
	pub     *recordingPublisher
	metrics *countingMetrics
	worker  *Worker
	stopped chan struct{}
}

func newWorkerHarness(t *testing.T, cfg Config) *workerHarness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	h := &workerHarness{
		ctx:     ctx,
		cancel:  cancel,
		clock:   clockwork.NewFakeClock(),
		store:   NewMemoryStore(0),
		pub:     newRecordingPublisher(),
		metrics: &countingMetrics{},
		stopped: make(chan struct{}),
	}
	h.worker = NewWorker(h.store, h.pub, cfg, WithClock(h.clock), WithMetrics(h.metrics))
	t.Cleanup(func() {
		h.cancel()
		select {
		case <-h.stopped:
		case <-time.After(waitFor):
		}
	})
	return h
}

func (h *workerHarness) run() {
	go func() {
		defer close(h.stopped)
		h.worker.Run(h.ctx)
	}()
}

func (h *workerHarness) enqueue(t *testing.T, eventType string) {
	t.Helper()
	require.NoError(t, h.worker.Enqueue(uuid.New(), eventType, map[string]string{"type": eventType}))
}

// fire waits for the worker to arm a timer and then moves the clock past it.
func (h *workerHarness) fire(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(d)
}

func TestWorkerDebouncesEnqueuedEvents(t *testing.T) {
	h := newWorkerHarness(t, testConfig())
	h.run()

	h.enqueue(t, "draft.started")
	h.enqueue(t, "assignment.recorded")
	h.enqueue(t, "project.roster")

	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	assert.Empty(t, h.pub.types(), "nothing is published before the debounce elapses")

	h.clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool { return len(h.pub.types()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"draft.started", "assignment.recorded", "project.roster"}, h.pub.types())

	n, err := h.store.Len(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorkerPublishesSpooledEventsOnStart(t *testing.T) {
	h := newWorkerHarness(t, testConfig())
	h.enqueue(t, "draft.started")

	h.run()
	h.fire(t, 500*time.Millisecond)

	require.Eventually(t, func() bool { return len(h.pub.types()) == 1 }, waitFor, tick)
}

func TestWorkerRetriesInOrder(t *testing.T) {
	h := newWorkerHarness(t, testConfig())
	h.pub.fail = func(event OutboxEvent, attempt int) bool {
		return event.EventType == "b" && attempt == 1
	}
	h.enqueue(t, "a")
	h.enqueue(t, "b")
	h.enqueue(t, "c")
	h.run()

	h.fire(t, 500*time.Millisecond)
	require.Eventually(t, func() bool { return h.pub.attemptsFor("b") == 1 }, waitFor, tick)
	assert.Equal(t, []string{"a"}, h.pub.types(), "a failed event blocks the events behind it")
	assert.Zero(t, h.pub.attemptsFor("c"))

	h.fire(t, 2*time.Second)
	require.Eventually(t, func() bool { return len(h.pub.types()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"a", "b", "c"}, h.pub.types())
}

func TestWorkerDropsEventAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	h := newWorkerHarness(t, cfg)
	h.pub.fail = func(event OutboxEvent, _ int) bool {
		return event.EventType == "bad"
	}
	h.enqueue(t, "bad")
	h.enqueue(t, "good")
	h.run()

	h.fire(t, 500*time.Millisecond)
	require.Eventually(t, func() bool { return h.pub.attemptsFor("bad") == 1 }, waitFor, tick)

	h.fire(t, 2*time.Second)
	require.Eventually(t, func() bool { return len(h.pub.types()) == 1 }, waitFor, tick)

	assert.Equal(t, []string{"good"}, h.pub.types())
	assert.Equal(t, 2, h.pub.attemptsFor("bad"))
	assert.Equal(t, []string{"bad"}, h.metrics.droppedTypes())
}

func TestWorkerFlush(t *testing.T) {
	h := newWorkerHarness(t, testConfig())
	h.run()
	h.enqueue(t, "draft.ended")

	require.NoError(t, h.worker.Flush(h.ctx))
	assert.Equal(t, []string{"draft.ended"}, h.pub.types())

	processed, _ := h.worker.Stats()
	assert.EqualValues(t, 1, processed)
}

func TestWorkerFlushReportsFailure(t *testing.T) {
	h := newWorkerHarness(t, testConfig())
	h.pub.fail = func(OutboxEvent, int) bool { return true }
	h.run()
	h.enqueue(t, "draft.ended")

	err := h.worker.Flush(h.ctx)
	assert.ErrorIs(t, err, errSinkDown)
}

func TestWorkerFlushAfterStop(t *testing.T) {
	h := newWorkerHarness(t, testConfig())
	h.run()
	h.cancel()
	<-h.stopped

	err := h.worker.Flush(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestWorkerEnqueueWhenFull(t *testing.T) {
	h := newWorkerHarness(t, testConfig())
	h.worker.store = NewMemoryStore(1)

	h.enqueue(t, "a")
	err := h.worker.Enqueue(uuid.New(), "b", nil)
	assert.ErrorIs(t, err, ErrOutboxFull)
	assert.Equal(t, []string{"b"}, h.metrics.droppedTypes())
}

func TestWorkerHealth(t *testing.T) {
	h := newWorkerHarness(t, testConfig())

	rec := httptest.NewRecorder()
	h.worker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/outbox", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.Running)
	assert.Contains(t, status.Errors, "worker not running")

	h.pub.fail = func(OutboxEvent, int) bool { return true }
	h.run()
	h.enqueue(t, "a")
	require.Error(t, h.worker.Flush(h.ctx))

	status = h.worker.Health(h.ctx)
	assert.True(t, status.Running)
	assert.False(t, status.Healthy)
	assert.Equal(t, 1, status.PendingEvents)
	assert.Equal(t, "publishing is failing", status.Errors[len(status.Errors)-1])
	assert.Contains(t, status.LastError, errSinkDown.Error())
}

func TestJitterBackoffBounds(t *testing.T) {
	base, capDur := 100*time.Millisecond, time.Second
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, want := range expected {
		for range 20 {
			got := jitterBackoff(i+1, base, capDur)
			assert.GreaterOrEqual(t, got, want-want/5)
			assert.LessOrEqual(t, got, want+want/5)
		}
	}
}

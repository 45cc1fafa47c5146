package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Debounce batches events enqueued close together into one flush.
	Debounce time.Duration
	// BatchSize bounds how many events are read from the store per pass.
	BatchSize int
	// MaxRetries is the number of failed publishes after which an event is
	// dropped so that it cannot block the events behind it forever. Zero
	// retries forever.
	MaxRetries int
	// RetryDelay is the base of the exponential retry backoff.
	RetryDelay time.Duration
	// MaxRetryDelay caps the backoff.
	MaxRetryDelay time.Duration
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:      500 * time.Millisecond,
		BatchSize:     100,
		MaxRetries:    10,
		RetryDelay:    time.Second,
		MaxRetryDelay: time.Minute,
	}
}

type flushRequest struct {
	ctx   context.Context
	reply chan error
}

// Worker drains the store into the publisher in the background. Events are
// published strictly in order: a failed publish stops the pass and the
// event is retried with backoff before anything behind it is sent.
type Worker struct {
	store     Store
	publisher EventPublisher
	config    Config
	metrics   MetricsCollector
	clock     clockwork.Clock

	signal  chan struct{}
	flushCh chan flushRequest
	done    chan struct{}

	// owned by the run goroutine
	attempts map[uuid.UUID]int
	failures int

	mu            sync.Mutex
	running       bool
	processed     uint64
	lastPublished time.Time
	lastError     error
}

type Option func(*Worker)

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// NewWorker creates a worker draining store into publisher.
func NewWorker(store Store, publisher EventPublisher, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		config:    cfg,
		metrics:   &NoOpMetricsCollector{},
		clock:     clockwork.NewRealClock(),
		signal:    make(chan struct{}, 1),
		flushCh:   make(chan flushRequest),
		done:      make(chan struct{}),
		attempts:  make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue stores an event and schedules a debounced flush. It never waits
// on the publisher.
func (w *Worker) Enqueue(draftID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	event := OutboxEvent{
		ID:        uuid.New(),
		DraftID:   draftID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: w.clock.Now().UTC(),
	}
	if err := w.store.Append(context.Background(), event); err != nil {
		w.metrics.RecordEventDropped(eventType)
		return fmt.Errorf("append %s: %w", eventType, err)
	}

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return nil
}

// Flush publishes everything pending now and waits for the result.
func (w *Worker) Flush(ctx context.Context) error {
	req := flushRequest{ctx: ctx, reply: make(chan error, 1)}
	select {
	case w.flushCh <- req:
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is done. Events still pending at shutdown
// stay in the store.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	log.Info().
		Dur("debounce", w.config.Debounce).
		Int("batch_size", w.config.BatchSize).
		Int("max_retries", w.config.MaxRetries).
		Msg("outbox worker started")

	var debounce, retry clockwork.Timer
	defer func() {
		stopTimer(debounce)
		stopTimer(retry)
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.done)
		log.Info().Msg("outbox worker stopped")
	}()

	// Pick up anything spooled by a previous run.
	if n, err := w.store.Len(ctx); err == nil && n > 0 {
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}

	for {
		var debounceC, retryC <-chan time.Time
		if debounce != nil {
			debounceC = debounce.Chan()
		}
		if retry != nil {
			retryC = retry.Chan()
		}

		select {
		case <-ctx.Done():
			return

		case <-w.signal:
			if debounce == nil && retry == nil {
				debounce = w.clock.NewTimer(w.config.Debounce)
			}

		case <-debounceC:
			debounce = nil
			retry = w.afterPass(w.drain(ctx))

		case <-retryC:
			retry = w.afterPass(w.drain(ctx))

		case req := <-w.flushCh:
			stopTimer(debounce)
			stopTimer(retry)
			debounce, retry = nil, nil
			err := w.drain(req.ctx)
			req.reply <- err
			retry = w.afterPass(err)
		}
	}
}

// afterPass arms the retry timer when a pass failed.
func (w *Worker) afterPass(err error) clockwork.Timer {
	if err == nil {
		w.failures = 0
		return nil
	}
	w.failures++
	delay := jitterBackoff(w.failures, w.config.RetryDelay, w.config.MaxRetryDelay)
	log.Warn().
		Err(err).
		Int("consecutive_failures", w.failures).
		Dur("retry_in", delay).
		Msg("outbox publish failed, will retry")
	return w.clock.NewTimer(delay)
}

// drain publishes pending events in order until the store is empty or a
// publish fails.
func (w *Worker) drain(ctx context.Context) error {
	start := w.clock.Now()
	published := 0
	defer func() {
		if n, err := w.store.Len(ctx); err == nil {
			w.metrics.RecordOutboxLag(n)
		}
		if published > 0 {
			w.metrics.RecordBatchProcessed(published, w.clock.Since(start))
		}
	}()

	for {
		batch, err := w.store.Pending(ctx, w.config.BatchSize)
		if err != nil {
			return fmt.Errorf("read pending events: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		for _, event := range batch {
			if err := w.publishOne(ctx, event); err != nil {
				return err
			}
			published++
		}
	}
}

func (w *Worker) publishOne(ctx context.Context, event OutboxEvent) error {
	attempt := w.attempts[event.ID] + 1
	start := w.clock.Now()
	err := w.publisher.Publish(ctx, event)
	w.metrics.RecordPublishAttempt(event.EventType, attempt, err == nil)
	w.metrics.RecordEventProcessed(event.EventType, err == nil, w.clock.Since(start))

	if err != nil {
		w.setLastError(err)
		if w.config.MaxRetries <= 0 || attempt < w.config.MaxRetries {
			w.attempts[event.ID] = attempt
			return fmt.Errorf("publish %s %s: %w", event.EventType, event.ID, err)
		}
		log.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int("attempts", attempt).
			Msg("dropping outbox event after max retries")
		w.metrics.RecordEventDropped(event.EventType)
	}

	delete(w.attempts, event.ID)
	if ackErr := w.store.Ack(ctx, event.ID); ackErr != nil {
		return fmt.Errorf("ack %s: %w", event.ID, ackErr)
	}
	if err == nil {
		w.mu.Lock()
		w.processed++
		w.lastPublished = w.clock.Now()
		w.lastError = nil
		w.mu.Unlock()
	}
	return nil
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastError = err
}

// stopTimer stops t if it is set, discarding a pending tick.
func stopTimer(t clockwork.Timer) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

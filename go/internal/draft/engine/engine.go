package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/staffdraft/go/internal/auth"
	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// Config holds engine tuning.
type Config struct {
	GracePeriod       time.Duration
	SweepInterval     time.Duration
	QueueSize         int
	FinalFlushTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod:       10 * time.Second,
		SweepInterval:     15 * time.Second,
		QueueSize:         256,
		FinalFlushTimeout: 10 * time.Second,
	}
}

// Dependencies are the engine's collaborators. Verifier, Directory and
// Source are required; the rest fall back to no-op implementations.
type Dependencies struct {
	Verifier  auth.Verifier
	Directory catalog.Directory
	Source    catalog.Source
	Notifier  Notifier
	Sink      Sink
	Flusher   Flusher
	Metrics   Metrics
	Clock     clockwork.Clock

	// Alive reports whether the transport still has connID. Used by the
	// periodic sweep; nil disables it.
	Alive func(connID string) bool

	// Shuffle permutes the roster at draft start. Defaults to rand.Shuffle.
	Shuffle func(n int, swap func(i, j int))
}

// Engine coordinates a single draft: registration, snake-order turns,
// serialized claims, presence tracking and the draft lifecycle.
type Engine struct {
	cfg   Config
	alive func(string) bool

	state      *State
	rotation   *Rotation
	registry   *Registry
	supervisor *Supervisor
	lifecycle  *Lifecycle
	gate       *Gate

	runOnce sync.Once
}

// New wires the engine components around a fresh state. Run must be called
// before claims are processed.
func New(cfg Config, deps Dependencies) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Shuffle == nil {
		deps.Shuffle = rand.Shuffle
	}
	defaults := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaults.GracePeriod
	}
	if cfg.FinalFlushTimeout <= 0 {
		cfg.FinalFlushTimeout = defaults.FinalFlushTimeout
	}

	state := NewState()
	rotation := NewRotation(state, deps.Notifier, deps.Metrics)
	lifecycle := NewLifecycle(state, rotation, deps.Source, deps.Notifier, deps.Sink, deps.Flusher, deps.Metrics, deps.Clock, deps.Shuffle, cfg.FinalFlushTimeout)
	supervisor := NewSupervisor(state, rotation, lifecycle, deps.Notifier, deps.Metrics, deps.Clock, cfg.GracePeriod)

	return &Engine{
		cfg:        cfg,
		alive:      deps.Alive,
		state:      state,
		rotation:   rotation,
		registry:   NewRegistry(state, deps.Verifier, deps.Directory, deps.Source, supervisor, deps.Notifier, deps.Metrics),
		supervisor: supervisor,
		lifecycle:  lifecycle,
		gate:       NewGate(state, rotation, lifecycle, deps.Notifier, deps.Sink, deps.Metrics, deps.Clock, cfg.QueueSize),
	}
}

// Run processes claims and sweeps dead connections until ctx is done. It
// must be called once; later calls return immediately.
func (e *Engine) Run(ctx context.Context) {
	e.runOnce.Do(func() {
		log.Info().
			Dur("grace_period", e.cfg.GracePeriod).
			Dur("sweep_interval", e.cfg.SweepInterval).
			Int("queue_size", e.cfg.QueueSize).
			Msg("draft engine started")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.gate.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			e.supervisor.RunSweeper(ctx, e.cfg.SweepInterval, e.alive)
		}()
		wg.Wait()

		e.lifecycle.Wait()
		e.Close()
		log.Info().Msg("draft engine stopped")
	})
}

// Close cancels pending grace timers.
func (e *Engine) Close() {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	for _, seat := range e.state.seats {
		stopGraceLocked(seat)
	}
}

// Register seats a participant on connID or rebinds their existing seat.
func (e *Engine) Register(ctx context.Context, connID, participantID, credentials string) (Registration, error) {
	return e.registry.Register(ctx, connID, participantID, credentials)
}

// Start begins the draft with the registered lobby.
func (e *Engine) Start(ctx context.Context) error {
	return e.lifecycle.Start(ctx)
}

// End closes the draft and waits for the final sync flush.
func (e *Engine) End(ctx context.Context) error {
	return e.lifecycle.End(ctx, "ended by administrator")
}

// Claim places a consultant on one of the caller's projects. It waits for
// the claim worker.
func (e *Engine) Claim(ctx context.Context, connID, consultantID, projectID string) error {
	return e.gate.Claim(ctx, connID, consultantID, projectID)
}

// Defer passes the caller's turn.
func (e *Engine) Defer(ctx context.Context, connID string) error {
	return e.gate.Defer(ctx, connID)
}

// Leave removes the caller from the lobby or holds its seat mid-draft.
func (e *Engine) Leave(connID string) error {
	return e.supervisor.Leave(connID)
}

// Kick removes a participant and closes its connection.
func (e *Engine) Kick(participantID string) error {
	return e.supervisor.Kick(participantID)
}

// Disconnect reports that the transport lost connID.
func (e *Engine) Disconnect(connID string) {
	e.supervisor.Disconnect(connID)
}

// Sweep runs one dead-connection sweep immediately.
func (e *Engine) Sweep() int {
	if e.alive == nil {
		return 0
	}
	return e.supervisor.Sweep(e.alive)
}

// Snapshot returns the current draft state.
func (e *Engine) Snapshot() events.DraftSnapshot {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.snapshotLocked()
}

// Status returns the lifecycle state.
func (e *Engine) Status() Status {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.status
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/staffdraft/go/internal/auth"
	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/mcdev12/staffdraft/go/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	joinCode = "sp2025"
	waitFor  = 2 * time.Second
	tick     = 5 * time.Millisecond
)

type recorder struct {
	mu           sync.Mutex
	broadcasts   []events.Message
	sent         map[string][]events.Message
	disconnected []string
}

func newRecorder() *recorder {
	return &recorder{sent: make(map[string][]events.Message)}
}

func (r *recorder) Broadcast(msg events.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, msg)
}

func (r *recorder) Send(connID string, msg events.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[connID] = append(r.sent[connID], msg)
}

func (r *recorder) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, connID)
}

func (r *recorder) ofType(t events.MessageType) []events.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Message
	for _, m := range r.broadcasts {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) turnHolders() []string {
	var ids []string
	for _, m := range r.ofType(events.MessageTurnUpdate) {
		ids = append(ids, m.Data.(events.TurnUpdatePayload).ParticipantID)
	}
	return ids
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = nil
}

type sinkEvent struct {
	draftID   uuid.UUID
	eventType string
	payload   any
}

type memSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *memSink) Enqueue(draftID uuid.UUID, eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{draftID: draftID, eventType: eventType, payload: payload})
	return nil
}

func (s *memSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.eventType)
	}
	return out
}

type countingFlusher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *countingFlusher) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *countingFlusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingSource struct{}

func (failingSource) Load(context.Context) (*catalog.Snapshot, error) {
	return nil, errors.New("database is down")
}

func pid(i int) string  { return fmt.Sprintf("sm-%d", i) }
func conn(i int) string { return fmt.Sprintf("conn-%d", i) }
func item(i int) string { return fmt.Sprintf("c-%02d", i) }
func proj(i int) string { return fmt.Sprintf("p-%d", i) }

// testCatalog builds n participants, each owning one project that accepts
// both roles, and a pool of items consultants alternating NC and EC.
func testCatalog(t *testing.T, n, items int) *catalog.Snapshot {
	t.Helper()
	var (
		participants []models.Participant
		consultants  []models.Consultant
		projects     []models.Project
	)
	for i := 0; i < n; i++ {
		participants = append(participants, models.Participant{ID: pid(i), Name: fmt.Sprintf("Manager %d", i)})
		projects = append(projects, models.Project{
			ID:      proj(i),
			OwnerID: pid(i),
			Name:    fmt.Sprintf("Project %d", i),
			Accepts: []models.Category{models.CategoryNC, models.CategoryEC},
		})
	}
	for i := 0; i < items; i++ {
		role := models.CategoryNC
		if i%2 == 1 {
			role = models.CategoryEC
		}
		consultants = append(consultants, models.Consultant{ID: item(i), Name: fmt.Sprintf("Consultant %d", i), Role: role})
	}
	snap, err := catalog.NewSnapshot(participants, consultants, projects)
	require.NoError(t, err)
	return snap
}

func catalogWithProjects(snap *catalog.Snapshot, projects []models.Project) (*catalog.Snapshot, error) {
	return catalog.NewSnapshot(snap.Participants(), snap.Consultants(), projects)
}

type harness struct {
	t       *testing.T
	eng     *Engine
	rec     *recorder
	sink    *memSink
	flusher *countingFlusher
	clock   *clockwork.FakeClock
	snap    *catalog.Snapshot
	alive   map[string]bool
	aliveMu sync.Mutex
	ctx     context.Context
	stop    func()

	nextItem int
}

type harnessOption func(*Config, *Dependencies)

func withSource(src catalog.Source) harnessOption {
	return func(_ *Config, d *Dependencies) { d.Source = src }
}

// newHarness builds an engine over a catalog of n participants and items
// consultants. The roster keeps registration order at start.
func newHarness(t *testing.T, n, items int, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		rec:     newRecorder(),
		sink:    &memSink{},
		flusher: &countingFlusher{},
		clock:   clockwork.NewFakeClock(),
		snap:    testCatalog(t, n, items),
		alive:   make(map[string]bool),
	}

	cfg := Config{GracePeriod: 10 * time.Second, QueueSize: 16, FinalFlushTimeout: time.Second}
	deps := Dependencies{
		Verifier:  auth.NewJoinCodeVerifier(joinCode),
		Directory: h.snap,
		Source:    h.snap,
		Notifier:  h.rec,
		Sink:      h.sink,
		Flusher:   h.flusher,
		Clock:     h.clock,
		Alive:     h.isAlive,
		Shuffle:   func(int, func(i, j int)) {},
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	h.eng = New(cfg, deps)
	h.ctx, h.stop = context.WithCancel(context.Background())
	t.Cleanup(h.stop)
	return h
}

// run starts the claim worker.
func (h *harness) run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.eng.gate.Run(h.ctx)
	}()
	h.t.Cleanup(func() {
		h.stop()
		<-done
		h.eng.lifecycle.Wait()
	})
}

func (h *harness) isAlive(connID string) bool {
	h.aliveMu.Lock()
	defer h.aliveMu.Unlock()
	return h.alive[connID]
}

func (h *harness) setAlive(connID string, alive bool) {
	h.aliveMu.Lock()
	defer h.aliveMu.Unlock()
	h.alive[connID] = alive
}

func (h *harness) register(i int) Registration {
	h.t.Helper()
	reg, err := h.eng.Register(context.Background(), conn(i), pid(i), joinCode)
	require.NoError(h.t, err)
	h.setAlive(conn(i), true)
	return reg
}

// startWith registers participants 0..n-1 and starts the draft.
func (h *harness) startWith(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.register(i)
	}
	require.NoError(h.t, h.eng.Start(context.Background()))
}

func (h *harness) holder() string {
	return h.eng.Snapshot().TurnHolder
}

func (h *harness) claim(i, itemIdx int) error {
	return h.eng.Claim(context.Background(), conn(i), item(itemIdx), proj(i))
}

// playTurns has whoever holds the turn claim the next unclaimed item, n
// times, and returns the holders in order.
func (h *harness) playTurns(n int) []string {
	h.t.Helper()
	holders := make([]string, 0, n)
	for range n {
		holder := h.holder()
		var seat int
		_, err := fmt.Sscanf(holder, "sm-%d", &seat)
		require.NoError(h.t, err, "holder %q", holder)

		holders = append(holders, holder)
		require.NoError(h.t, h.claim(seat, h.nextItem))
		h.nextItem++
	}
	return holders
}

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/mcdev12/staffdraft/go/internal/models"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPublisher(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Envelope
		headers  []http.Header
		status   = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env Envelope
		_ = json.Unmarshal(body, &env)

		mu.Lock()
		defer mu.Unlock()
		received = append(received, env)
		headers = append(headers, r.Header.Clone())
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	pub := NewWebhookPublisher(srv.URL, nil)
	event := newEvent(t, events.EventDraftEnded)

	require.NoError(t, pub.Publish(context.Background(), event))

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, event.ID.String(), received[0].EventID)
	assert.Equal(t, event.DraftID.String(), received[0].DraftID)
	assert.Equal(t, events.EventDraftEnded, received[0].EventType)
	assert.JSONEq(t, string(event.Payload), string(received[0].Payload))
	assert.Equal(t, event.ID.String(), headers[0].Get("Idempotency-Key"))
	assert.Equal(t, "application/json", headers[0].Get("Content-Type"))
	status = http.StatusInternalServerError
	mu.Unlock()

	err := pub.Publish(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

type execCall struct {
	sql  string
	args []any
}

type recordingExecer struct {
	calls []execCall
	err   error
}

func (e *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.calls = append(e.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func TestHistoryPublisher(t *testing.T) {
	db := &recordingExecer{}
	pub := NewHistoryPublisher(db)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, newEvent(t, events.EventDraftStarted)))
	assert.Empty(t, db.calls, "only assignments are recorded")

	draftID := uuid.New()
	rec := events.AssignmentRecordedEvent{
		Assignment: models.Assignment{
			DraftID:       draftID,
			Pick:          4,
			ParticipantID: "sm-ana",
			ConsultantID:  "c-002",
			ProjectID:     "p-retail",
			Bucket:        models.CategoryEC,
			AssignedAt:    time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		ConsultantName: "Bea",
	}
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	event := OutboxEvent{ID: uuid.New(), DraftID: draftID, EventType: events.EventAssignmentRecorded, Payload: payload}
	require.NoError(t, pub.Publish(ctx, event))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "ON CONFLICT (draft_id, consultant_id) DO NOTHING")
	args := db.calls[0].args
	require.Len(t, args, 7)
	assert.Equal(t, []any{draftID, 4, "sm-ana", "c-002", "p-retail", "EC"}, args[:6])
	assert.True(t, rec.AssignedAt.Equal(args[6].(time.Time)))

	db.err = errors.New("connection refused")
	assert.Error(t, pub.Publish(ctx, event))

	event.Payload = json.RawMessage(`{"pick":"nope"}`)
	assert.Error(t, pub.Publish(ctx, event))
}

func TestMultiPublisherTriesEverySink(t *testing.T) {
	ok := newRecordingPublisher()
	failing := newRecordingPublisher()
	failing.fail = func(OutboxEvent, int) bool { return true }

	pub := NewMultiPublisher(failing, ok, NewLogPublisher(zerolog.Nop()))
	err := pub.Publish(context.Background(), newEvent(t, "a"))

	assert.ErrorIs(t, err, errSinkDown)
	assert.Equal(t, []string{"a"}, ok.types())
	assert.Equal(t, 1, failing.attemptsFor("a"))
}

func startEmbeddedNATS(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect to embedded NATS: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestJetStreamPublisherDeduplicates(t *testing.T) {
	nc := startEmbeddedNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DefaultJetStreamConfig()
	cfg.MemoryStorage = true
	pub, err := NewJetStreamPublisherWithConn(ctx, nc, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })
	assert.True(t, pub.Connected())

	event := newEvent(t, events.EventAssignmentRecorded)
	require.NoError(t, pub.Publish(ctx, event))
	require.NoError(t, pub.Publish(ctx, event), "redelivery is accepted")

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := js.Stream(ctx, cfg.StreamName)
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.State.Msgs)

	msg, err := stream.GetMsg(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "staffdraft.events.assignment.recorded", msg.Subject)
	assert.Equal(t, event.ID.String(), msg.Header.Get("Event-ID"))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, event.DraftID.String(), env.DraftID)

	// A second publisher on the same stream reuses it.
	_, err = NewJetStreamPublisherWithConn(ctx, nc, cfg)
	require.NoError(t, err)
}

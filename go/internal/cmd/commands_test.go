package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/staffdraft/go/internal/auth"
	"github.com/mcdev12/staffdraft/go/internal/draft/engine"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/mcdev12/staffdraft/go/internal/draft/gateway"
)

const testCatalog = "../catalog/testdata/catalog.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCatalogCheck(t *testing.T) {
	out, err := execute(t, "catalog", "check", "--file", testCatalog)
	require.NoError(t, err)

	assert.Contains(t, out, "participants: 3")
	assert.Contains(t, out, "consultants:  4 (NC 2, EC 2)")
	assert.Contains(t, out, "sm-ana (Ana Reyes): 1 projects")
}

func TestCatalogCheckMissingFile(t *testing.T) {
	_, err := execute(t, "catalog", "check", "--file", "testdata/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read catalog file")
}

func TestTokenIssue(t *testing.T) {
	t.Setenv("DRAFT_TOKEN_SECRET", "issue-secret")
	t.Setenv("DRAFT_TOKEN_ISSUER", "staffdraft-test")

	out, err := execute(t, "token", "issue", "sm-ben", "--ttl", "1h")
	require.NoError(t, err)

	token := strings.TrimSpace(out)
	v := auth.NewTokenVerifier("issue-secret", "staffdraft-test")
	assert.NoError(t, v.Verify("sm-ben", token))
	assert.Error(t, v.Verify("sm-ana", token))
}

func TestTokenIssueRequiresSecret(t *testing.T) {
	t.Setenv("DRAFT_TOKEN_SECRET", "")

	_, err := execute(t, "token", "issue", "sm-ben")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DRAFT_TOKEN_SECRET")
}

type stubEngine struct {
	started bool
	kicked  []string
}

func (s *stubEngine) Register(context.Context, string, string, string) (engine.Registration, error) {
	return engine.Registration{}, nil
}

func (s *stubEngine) Start(context.Context) error {
	s.started = true
	return nil
}

func (s *stubEngine) Kick(participantID string) error {
	s.kicked = append(s.kicked, participantID)
	return nil
}

func (s *stubEngine) Snapshot() events.DraftSnapshot {
	return events.DraftSnapshot{Status: "lobby", Remaining: 4}
}

func (s *stubEngine) End(context.Context) error                           { return engine.ErrDraftNotStarted }
func (s *stubEngine) Claim(context.Context, string, string, string) error { return nil }
func (s *stubEngine) Defer(context.Context, string) error                 { return nil }
func (s *stubEngine) Leave(string) error                                  { return nil }
func (s *stubEngine) Disconnect(string)                                   {}

func adminServer(t *testing.T, eng *stubEngine) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(gateway.NewAdminService(eng, "admin-key").Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAdminCommands(t *testing.T) {
	eng := &stubEngine{}
	srv := adminServer(t, eng)
	base := []string{"admin", "--url", srv.URL, "--key", "admin-key"}

	out, err := execute(t, append(base, "start")...)
	require.NoError(t, err)
	assert.Contains(t, out, "draft started")
	assert.True(t, eng.started)

	_, err = execute(t, append(base, "kick", "sm-cai")...)
	require.NoError(t, err)
	assert.Equal(t, []string{"sm-cai"}, eng.kicked)

	out, err = execute(t, append(base, "state")...)
	require.NoError(t, err)
	assert.Contains(t, out, "lobby")

	_, err = execute(t, append(base, "end")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed_precondition")
}

func TestAdminCommandRejectsWrongKey(t *testing.T) {
	eng := &stubEngine{}
	srv := adminServer(t, eng)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"admin", "--url", srv.URL, "--key", "wrong", "start"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthenticated")
	assert.False(t, eng.started)
}

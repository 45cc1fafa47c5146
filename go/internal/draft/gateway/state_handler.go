package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// StateProvider supplies the current draft state.
type StateProvider interface {
	Snapshot() events.DraftSnapshot
}

// StateHandler serves the draft snapshot over plain HTTP for clients that
// need to resync without a websocket.
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetDraftState handles GET /api/draft/state.
func (h *StateHandler) HandleGetDraftState(w http.ResponseWriter, r *http.Request) {
	snapshot := h.stateProvider.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		log.Error().Err(err).Msg("failed to encode draft state")
	}
}

// RegisterStateRoutes registers state-related routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/draft/state", h.HandleGetDraftState)
}

package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service wires the websocket transport, the HTTP state endpoint and the
// admin service to one draft engine.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	admin             *AdminService
}

type Config struct {
	ConnectionConfig ConnectionConfig
	AdminKey         string
}

// DefaultConfig returns the gateway defaults with admin actions disabled.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService builds a gateway around a connection manager that the engine
// already uses as its Notifier.
func NewService(config Config, cm *ConnectionManager, eng DraftEngine) *Service {
	cm.SetHandler(NewRouter(eng, cm, config.AdminKey))

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(eng),
		admin:             NewAdminService(eng, config.AdminKey),
	}
}

// Start delivers outbound messages until ctx is done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting draft gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("draft gateway stopped")
}

// RegisterRoutes mounts the websocket, state and admin routes on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle(s.admin.Handler())
	log.Info().Msg("draft gateway routes registered")
}

// Stats returns connection counts.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}

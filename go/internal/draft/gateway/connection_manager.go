package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/staffdraft/go/internal/draft/engine"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// Handler receives inbound traffic from connections.
type Handler interface {
	HandleMessage(ctx context.Context, c *Connection, raw []byte)
	HandleDisconnect(c *Connection)
}

// ConnectionMetrics observes the number of open connections.
type ConnectionMetrics interface {
	ConnectionsChanged(open int)
}

// ConnectionManager owns the websocket connections of the draft and
// delivers engine notifications to them.
//
// Outbound messages go through a single queue drained by Start, so every
// connection sees them in the order the engine produced them. Broadcast,
// Send and Disconnect never block, which lets the engine call them while
// holding its state lock. The manager never calls into the engine while
// holding its own lock.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	baseCtx     context.Context

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  Handler
	metrics  ConnectionMetrics

	broadcastCh chan outbound
}

var _ engine.Notifier = (*ConnectionManager)(nil)

// Connection is one client websocket.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	conn      *websocket.Conn
	send      chan []byte
	manager   *ConnectionManager
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu            sync.Mutex
	participantID string
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// outbound is a queued message. An empty connID addresses every connection.
type outbound struct {
	connID string
	msg    events.Message
}

type nopConnectionMetrics struct{}

func (nopConnectionMetrics) ConnectionsChanged(int) {}

// DefaultConnectionConfig returns the connection limits used in production.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		BroadcastBuffer: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, metrics ConnectionMetrics) *ConnectionManager {
	if metrics == nil {
		metrics = nopConnectionMetrics{}
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		baseCtx:     context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		metrics:     metrics,
		broadcastCh: make(chan outbound, config.BroadcastBuffer),
	}
}

// SetHandler installs the inbound message handler. It must be called
// before the first connection is accepted.
func (cm *ConnectionManager) SetHandler(h Handler) {
	cm.handler = h
}

// Start delivers queued messages until ctx is done, then closes every
// connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	cm.mu.Lock()
	cm.baseCtx = ctx
	cm.mu.Unlock()

	log.Info().Msg("connection manager started")
	defer cm.closeAll()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.deliver(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request and starts the connection's
// pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade connection: %w", err)
	}

	cm.mu.Lock()
	ctx, cancel := context.WithCancel(cm.baseCtx)
	c := &Connection{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		conn:        ws,
		send:        make(chan []byte, cm.config.SendBuffer),
		manager:     cm,
		ctx:         ctx,
		cancel:      cancel,
	}
	cm.connections[c.ID] = c
	open := len(cm.connections)
	cm.mu.Unlock()

	cm.metrics.ConnectionsChanged(open)
	log.Info().
		Str("connection_id", c.ID).
		Str("remote_addr", r.RemoteAddr).
		Int("connections", open).
		Msg("websocket connection established")

	go c.writePump()
	go c.readPump()
	return c, nil
}

func (cm *ConnectionManager) unregister(c *Connection) bool {
	cm.mu.Lock()
	_, ok := cm.connections[c.ID]
	if ok {
		delete(cm.connections, c.ID)
		close(c.send)
	}
	open := len(cm.connections)
	cm.mu.Unlock()

	if ok {
		cm.metrics.ConnectionsChanged(open)
		log.Info().
			Str("connection_id", c.ID).
			Str("participant_id", c.Participant()).
			Int("connections", open).
			Msg("websocket connection closed")
	}
	return ok
}

// Broadcast queues msg for every connection.
func (cm *ConnectionManager) Broadcast(msg events.Message) {
	cm.enqueue(outbound{msg: msg})
}

// Send queues msg for a single connection.
func (cm *ConnectionManager) Send(connID string, msg events.Message) {
	if connID == "" {
		return
	}
	cm.enqueue(outbound{connID: connID, msg: msg})
}

func (cm *ConnectionManager) enqueue(o outbound) {
	select {
	case cm.broadcastCh <- o:
	default:
		log.Warn().
			Str("type", string(o.msg.Type)).
			Str("connection_id", o.connID).
			Msg("broadcast channel full, dropping message")
	}
}

// Disconnect closes connID. Its read pump then reports the disconnect to
// the handler.
func (cm *ConnectionManager) Disconnect(connID string) {
	cm.mu.RLock()
	c := cm.connections[connID]
	cm.mu.RUnlock()
	if c != nil {
		c.close()
	}
}

// IsConnected reports whether connID is still open.
func (cm *ConnectionManager) IsConnected(connID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.connections[connID]
	return ok
}

func (cm *ConnectionManager) deliver(message outbound) {
	data, err := json.Marshal(message.msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(message.msg.Type)).Msg("failed to marshal message")
		return
	}

	// Sends happen under the read lock so that unregister cannot close a
	// send channel underneath us.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for id, c := range cm.connections {
		if message.connID != "" && id != message.connID {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	cm.mu.RUnlock()

	for _, c := range slow {
		log.Warn().
			Str("connection_id", c.ID).
			Msg("connection send buffer full, closing connection")
		c.close()
	}

	log.Debug().
		Str("type", string(message.msg.Type)).
		Str("connection_id", message.connID).
		Int("connections", delivered).
		Msg("message delivered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

type ConnectionStats struct {
	TotalConnections      int `json:"total_connections"`
	RegisteredConnections int `json:"registered_connections"`
}

// Stats returns connection counts
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{TotalConnections: len(cm.connections)}
	for _, c := range cm.connections {
		if c.Participant() != "" {
			stats.RegisteredConnections++
		}
	}
	return stats
}

// Participant returns the participant registered on this connection, or
// "" when it has not registered.
func (c *Connection) Participant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

func (c *Connection) setParticipant(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = id
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.close()
		if c.manager.unregister(c) && c.manager.handler != nil {
			c.manager.handler.HandleDisconnect(c)
		}
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close")
			}
			return
		}

		if c.manager.handler != nil {
			c.manager.handler.HandleMessage(c.ctx, c, message)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

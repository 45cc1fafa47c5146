package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"

	"github.com/mcdev12/staffdraft/go/internal/draft/engine"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrNotAuthorized    = errors.New("not authorized")
)

// DraftEngine is the part of the engine the gateway drives.
type DraftEngine interface {
	Register(ctx context.Context, connID, participantID, credentials string) (engine.Registration, error)
	Start(ctx context.Context) error
	End(ctx context.Context) error
	Claim(ctx context.Context, connID, consultantID, projectID string) error
	Defer(ctx context.Context, connID string) error
	Leave(connID string) error
	Kick(participantID string) error
	Disconnect(connID string)
	Snapshot() events.DraftSnapshot
}

// Router turns inbound client messages into engine calls. Successful calls
// are answered by the engine's own notifications; the router only reports
// rejections back to the sender.
type Router struct {
	engine   DraftEngine
	notifier engine.Notifier
	adminKey string
}

var _ Handler = (*Router)(nil)

// NewRouter creates a router sending rejections through notifier.
func NewRouter(eng DraftEngine, notifier engine.Notifier, adminKey string) *Router {
	return &Router{engine: eng, notifier: notifier, adminKey: adminKey}
}

// HandleMessage decodes one client message and dispatches it.
func (rt *Router) HandleMessage(ctx context.Context, c *Connection, raw []byte) {
	var in events.Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		rt.reject(c, "", ErrMalformedMessage)
		return
	}

	logger := log.With().
		Str("connection_id", c.ID).
		Str("participant_id", c.Participant()).
		Str("request", string(in.Type)).
		Logger()
	logger.Debug().Msg("inbound message")

	var err error
	switch in.Type {
	case events.InboundRegister:
		err = rt.register(ctx, c, in.Data)
		if err != nil {
			logger.Debug().Err(err).Msg("registration rejected")
			rt.notifier.Send(c.ID, events.NewMessage(events.MessageRegistrationResult, events.RegistrationResultPayload{
				Accepted: false,
				Reason:   reason(err),
			}))
		}
		return

	case events.InboundStart:
		if c.Participant() == "" {
			err = engine.ErrNotRegistered
			break
		}
		err = rt.engine.Start(ctx)

	case events.InboundClaim:
		var req events.ClaimRequest
		if err = decode(in.Data, &req); err == nil {
			err = rt.engine.Claim(ctx, c.ID, req.ConsultantID, req.ProjectID)
		}

	case events.InboundDefer:
		err = rt.engine.Defer(ctx, c.ID)

	case events.InboundLeave:
		if err = rt.engine.Leave(c.ID); err == nil {
			c.setParticipant("")
		}

	case events.InboundKick:
		var req events.KickRequest
		if err = decode(in.Data, &req); err == nil {
			err = rt.kick(req)
		}

	default:
		err = ErrUnknownMessage
	}

	if err != nil {
		logger.Debug().Err(err).Msg("request rejected")
		rt.reject(c, string(in.Type), err)
	}
}

// HandleDisconnect tells the engine the connection is gone.
func (rt *Router) HandleDisconnect(c *Connection) {
	rt.engine.Disconnect(c.ID)
}

func (rt *Router) register(ctx context.Context, c *Connection, data json.RawMessage) error {
	var req events.RegisterRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	reg, err := rt.engine.Register(ctx, c.ID, req.ParticipantID, req.Credentials)
	if err != nil {
		return err
	}
	c.setParticipant(reg.Seat.ParticipantID)
	return nil
}

func (rt *Router) kick(req events.KickRequest) error {
	if !checkAdminKey(rt.adminKey, req.AdminKey) {
		return ErrNotAuthorized
	}
	return rt.engine.Kick(req.ParticipantID)
}

func (rt *Router) reject(c *Connection, request string, err error) {
	rt.notifier.Send(c.ID, events.NewMessage(events.MessageError, events.ErrorPayload{
		Reason:  reason(err),
		Request: request,
	}))
}

// checkAdminKey compares keys in constant time. An unset admin key disables
// administrative requests.
func checkAdminKey(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return ErrMalformedMessage
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrMalformedMessage
	}
	return nil
}

func reason(err error) string {
	for _, e := range []error{ErrMalformedMessage, ErrUnknownMessage, ErrNotAuthorized} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return engine.Reason(err)
}

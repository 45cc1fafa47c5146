package events

import (
	"encoding/json"
	"time"
)

// MessageType is the kind of an outbound message.
type MessageType string

const (
	MessageRegistrationResult MessageType = "registration-result"
	MessageRosterUpdate       MessageType = "roster-update"
	MessageDraftStarted       MessageType = "draft-started"
	MessageTurnUpdate         MessageType = "turn-update"
	MessageClaimApplied       MessageType = "claim-applied"
	MessagePoolSnapshot       MessageType = "pool-snapshot"
	MessageDraftEnding        MessageType = "draft-ending"
	MessageDraftEnded         MessageType = "draft-ended"
	MessageError              MessageType = "error"
)

// Message is an outbound notification. Data holds one of the *Payload types
// and is encoded when the message is written to a connection.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// NewMessage stamps a message with the current time.
func NewMessage(t MessageType, data any) Message {
	return Message{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// InboundType is the kind of a message received from a client.
type InboundType string

const (
	InboundRegister InboundType = "register"
	InboundStart    InboundType = "start"
	InboundClaim    InboundType = "claim"
	InboundDefer    InboundType = "defer"
	InboundLeave    InboundType = "leave"
	InboundKick     InboundType = "kick"
)

// Inbound is the envelope of every client message.
type Inbound struct {
	Type InboundType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type RegisterRequest struct {
	ParticipantID string `json:"participant_id"`
	Credentials   string `json:"credentials"`
}

type ClaimRequest struct {
	ConsultantID string `json:"consultant_id"`
	ProjectID    string `json:"project_id"`
}

type KickRequest struct {
	ParticipantID string `json:"participant_id"`
	AdminKey      string `json:"admin_key"`
}

package ws

import (
	"encoding/json"

	"github.com/wrapshot/agent/internal/domain"
)

// Frame types.
const (
	// Client to server.
	TypeSendMessage         = "send_message"
	TypeResolveConfirmation = "resolve_confirmation"

	// Server to client.
	TypeHello   = "hello"
	TypeMessage = "message"
	TypeAck     = "ack"
	TypeError   = "error"
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Ts        int64  `json:"ts,omitempty"`

	// hello
	ProjectID string `json:"project_id,omitempty"`

	// send_message
	Text string `json:"text,omitempty"`

	// resolve_confirmation
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Approved       *bool  `json:"approved,omitempty"`

	// message
	Message *domain.Message `json:"message,omitempty"`

	// ack
	MessageID    string                      `json:"message_id,omitempty"`
	Outcome      domain.ExecutionOutcome     `json:"outcome,omitempty"`
	Confirmation *domain.ConfirmationRequest `json:"confirmation,omitempty"`

	// error
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeResponse is the reserved message type for replies in the correlated
// request/response protocol. A response reuses the id of the request it
// answers; the supervisor intercepts these before unsolicited-message
// handlers run.
const TypeResponse = "response"

// Message is the envelope wrapped around every exchange on a process channel.
//
// The id is an opaque correlation identifier, unique among concurrently
// outstanding requests issued by one supervisor; a collision misroutes a
// response. The timestamp is informational only and carries no protocol
// meaning.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// NewMessage creates an envelope with a fresh correlation id and the payload
// marshaled to JSON. A nil payload produces an empty payload field.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("ipc: failed to marshal payload for %q: %w", msgType, err)
		}
		msg.Payload = data
	}

	return msg, nil
}

// Response builds the reply envelope for msg, reusing its correlation id.
func (m Message) Response(payload any) (Message, error) {
	reply, err := NewMessage(TypeResponse, payload)
	if err != nil {
		return Message{}, err
	}
	reply.ID = m.ID
	return reply, nil
}

// DecodePayload unmarshals a message payload into T.
func DecodePayload[T any](m Message) (T, error) {
	var v T
	if len(m.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(m.Payload, &v); err != nil {
		return v, fmt.Errorf("ipc: failed to decode %q payload: %w", m.Type, err)
	}
	return v, nil
}

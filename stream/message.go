package stream

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Reserved message types
const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Priority outbound hint carried on the envelope
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Message wire envelope
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
	Priority  Priority        `json:"priority,omitempty"`
}

// NewMessage encodes payload and assigns an ID.
func NewMessage(typ string, payload any, at time.Time) (Message, error) {
	m := Message{Type: typ, Timestamp: at, ID: uuid.NewString()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, ErrInvalidMessage.Wrap(err)
		}
		m.Payload = raw
	}
	return m, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return ErrInvalidMessage.WithMsgf("message %q has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return ErrInvalidMessage.Wrap(err)
	}
	return nil
}

type channelPayload struct {
	Channel string `json:"channel"`
}

func controlMessage(typ, channel string, at time.Time) Message {
	raw, _ := json.Marshal(channelPayload{Channel: channel})
	return Message{Type: typ, Payload: raw, Timestamp: at}
}

// Encode wire form
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, ErrInvalidMessage.Wrap(err)
	}
	return b, nil
}

// Decode parses one frame. A frame without a type is invalid.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, ErrInvalidMessage.Wrap(err)
	}
	if m.Type == "" {
		return Message{}, ErrInvalidMessage.WithMsgf("message without type")
	}
	return m, nil
}

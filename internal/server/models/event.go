package models

import "time"

type EventKind string

const (
	EventMessage EventKind = "message"
	EventTyping  EventKind = "typing"
	EventReceipt EventKind = "receipt"
)

// Event is a realtime notification fanned out to conversation subscribers.
type Event struct {
	Kind           EventKind `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	Receipt        *Receipt  `json:"receipt,omitempty"`
	At             time.Time `json:"at"`
}

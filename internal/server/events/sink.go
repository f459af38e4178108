// Package events emits a "message created" record for every newly stored
// message so downstream consumers (notifications, analytics) can react
// without polling the database. Payloads carry metadata only, never
// ciphertext.
package events

import (
	"context"
	"time"

	"github.com/agrolink/agrolink/internal/server/models"
)

// MessageCreated is the record published per stored message.
type MessageCreated struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	MimeType       string    `json:"mime_type"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewMessageCreated(m *models.Message) MessageCreated {
	return MessageCreated{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		MimeType:       m.MimeType,
		CreatedAt:      m.CreatedAt,
	}
}

type Sink interface {
	MessageCreated(ctx context.Context, m *models.Message) error
	Close() error
}

// NopSink is used when no broker is configured.
type NopSink struct{}

func (NopSink) MessageCreated(context.Context, *models.Message) error { return nil }
func (NopSink) Close() error                                          { return nil }

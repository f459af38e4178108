package models

import "time"

// QueueKind tells what a queued item will do when retried.
type QueueKind string

const (
	QueueKindMessage     QueueKind = "message"
	QueueKindParticipant QueueKind = "participant"
)

// QueuedItem is a send or participant add that failed against the backend
// and waits for a retry.
type QueuedItem struct {
	// ID doubles as the message id on send, so retries are idempotent.
	ID             string
	Kind           QueueKind
	ConversationID string

	// UserID is the sender for messages and the user to add for
	// participant items.
	UserID string

	Text     string
	MimeType string

	Attempts int
	Version  int64

	CreatedAt time.Time
}

// Clone returns a copy of the item.
func (q *QueuedItem) Clone() *QueuedItem {
	c := *q
	return &c
}

package models

import "time"

// Conversation is the caller's view of a conversation.
type Conversation struct {
	ID             string
	ParticipantIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastMessageAt  *time.Time
	LastMessageID  string
	UnreadCount    int64
}

// TypingEvent reports that a user is typing in a conversation.
type TypingEvent struct {
	ConversationID string
	UserID         string
	At             time.Time
}

package models

import "time"

type Conversation struct {
	ID             string
	PairKey        string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastMessageAt  *time.Time
	LastMessageID  *string
	ParticipantIDs []string
	UnreadCount    int64
}

// Participant is one member of a conversation together with the
// conversation key wrapped for that member.
type Participant struct {
	ConversationID     string
	UserID             string
	JoinedAt           time.Time
	ArchivedAt         *time.Time
	KeyEphemeralPublic []byte
	KeyNonce           []byte
	KeyCiphertext      []byte
}

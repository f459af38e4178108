package models

import "time"

// Message is stored exactly as the client encrypted it.
type Message struct {
	ID             string
	Seq            int64
	ConversationID string
	SenderID       string
	Ciphertext     string
	IV             string
	MimeType       string
	CreatedAt      time.Time
	Receipts       []*Receipt
}

// Receipt tracks delivery and read state of a message for one user.
type Receipt struct {
	MessageID   string
	UserID      string
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

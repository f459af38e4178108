package models

import "time"

// MessageStatus is the delivery state of a message sent by the current user,
// derived from the other participants' receipts.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is a decrypted message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string

	// Text holds the plaintext, or the decrypt placeholder when the
	// ciphertext could not be opened with the local key.
	Text     string
	MimeType string

	// DecryptFailed is set together with the placeholder Text.
	DecryptFailed bool

	CreatedAt time.Time
	Seq       int64

	// Status is only meaningful for messages sent by the current user.
	Status MessageStatus
}

// Receipt tracks delivery and read state of a message for one user.
type Receipt struct {
	MessageID   string
	UserID      string
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

// StatusFromReceipts returns the status of a message sent by senderID:
// read beats delivered, delivered beats sent. The sender's own receipts are
// ignored.
func StatusFromReceipts(senderID string, receipts []*Receipt) MessageStatus {
	st := StatusSent
	for _, r := range receipts {
		if r == nil || r.UserID == senderID {
			continue
		}
		if r.ReadAt != nil {
			return StatusRead
		}
		if r.DeliveredAt != nil {
			st = StatusDelivered
		}
	}
	return st
}

package grpc

import (
	"github.com/agrolink/agrolink/internal/rpc"
	"github.com/agrolink/agrolink/internal/server/models"
)

func keyToRPC(p *models.Participant) *rpc.WrappedKey {
	if p == nil {
		return nil
	}
	return &rpc.WrappedKey{
		UserID:          p.UserID,
		EphemeralPublic: p.KeyEphemeralPublic,
		Nonce:           p.KeyNonce,
		Ciphertext:      p.KeyCiphertext,
	}
}

func keyFromRPC(conversationID string, k *rpc.WrappedKey) *models.Participant {
	if k == nil {
		return nil
	}
	return &models.Participant{
		ConversationID:     conversationID,
		UserID:             k.UserID,
		KeyEphemeralPublic: k.EphemeralPublic,
		KeyNonce:           k.Nonce,
		KeyCiphertext:      k.Ciphertext,
	}
}

func conversationToRPC(c *models.Conversation) *rpc.Conversation {
	out := &rpc.Conversation{
		ID:             c.ID,
		ParticipantIDs: c.ParticipantIDs,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		LastMessageAt:  c.LastMessageAt,
		UnreadCount:    c.UnreadCount,
	}
	if c.LastMessageID != nil {
		out.LastMessageID = *c.LastMessageID
	}
	return out
}

func receiptToRPC(r *models.Receipt) *rpc.Receipt {
	if r == nil {
		return nil
	}
	return &rpc.Receipt{
		MessageID:   r.MessageID,
		UserID:      r.UserID,
		DeliveredAt: r.DeliveredAt,
		ReadAt:      r.ReadAt,
	}
}

func receiptsToRPC(rs []*models.Receipt) []*rpc.Receipt {
	out := make([]*rpc.Receipt, 0, len(rs))
	for _, r := range rs {
		out = append(out, receiptToRPC(r))
	}
	return out
}

func messageToRPC(m *models.Message) *rpc.Message {
	if m == nil {
		return nil
	}
	out := &rpc.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Ciphertext:     m.Ciphertext,
		IV:             m.IV,
		MimeType:       m.MimeType,
		CreatedAt:      m.CreatedAt,
		Seq:            m.Seq,
	}
	if len(m.Receipts) > 0 {
		out.Receipts = receiptsToRPC(m.Receipts)
	}
	return out
}

func messageFromRPC(m *rpc.Message) *models.Message {
	if m == nil {
		return nil
	}
	return &models.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Ciphertext:     m.Ciphertext,
		IV:             m.IV,
		MimeType:       m.MimeType,
	}
}

func eventToRPC(e *models.Event) *rpc.Event {
	return &rpc.Event{
		Kind:           string(e.Kind),
		ConversationID: e.ConversationID,
		UserID:         e.UserID,
		Message:        messageToRPC(e.Message),
		Receipt:        receiptToRPC(e.Receipt),
		At:             e.At,
	}
}

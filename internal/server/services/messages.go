package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/dbx"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/google/uuid"
)

// ListMessages returns the conversation's messages visible to userID in
// ascending order, each with the receipts recorded for it.
func (s *MessagingService) ListMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error) {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.repomanager.Messages(s.db).ListByConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	rs, err := s.repomanager.Receipts(s.db).ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error listing receipts: %w", err)
	}
	byMessage := make(map[string][]*models.Receipt, len(msgs))
	for _, r := range rs {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	for _, m := range msgs {
		m.Receipts = byMessage[m.ID]
	}
	return msgs, nil
}

// SendMessage stores a client-encrypted message. The id is chosen by the
// client, so a retried send returns the stored message without a second
// insert or a second event.
func (s *MessagingService) SendMessage(ctx context.Context, userID string, m *models.Message) (*models.Message, error) {
	if m == nil || m.Ciphertext == "" || m.IV == "" {
		return nil, common.ErrorValidation
	}
	if _, err := uuid.Parse(m.ID); err != nil {
		return nil, common.ErrorValidation
	}
	if m.SenderID == "" {
		m.SenderID = userID
	}
	if m.SenderID != userID {
		return nil, common.ErrorUnauthorized
	}
	if m.MimeType == "" {
		m.MimeType = "text/plain"
	}
	if _, err := s.requireParticipant(ctx, m.ConversationID, userID); err != nil {
		return nil, err
	}

	var stored *models.Message
	var created bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		stored, created, err = s.repomanager.Messages(tx).Insert(ctx, m)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.repomanager.Conversations(tx).TouchLastMessage(ctx, stored.ConversationID, stored.ID, stored.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error storing message: %w", err)
	}

	if !created {
		return stored, nil
	}

	if s.metrics != nil {
		s.metrics.MessagesStored.Inc()
	}
	s.publish(ctx, &models.Event{
		Kind:           models.EventMessage,
		ConversationID: stored.ConversationID,
		UserID:         userID,
		Message:        stored,
		At:             stored.CreatedAt,
	})
	if err := s.sink.MessageCreated(ctx, stored); err != nil {
		s.logger.Warn(ctx, "message event not exported", "message_id", stored.ID, "error", err)
	}
	return stored, nil
}

// MarkDelivered records delivery of messageIDs to userID.
func (s *MessagingService) MarkDelivered(ctx context.Context, userID string, messageIDs []string) ([]*models.Receipt, error) {
	return s.markReceipts(ctx, userID, messageIDs, "delivered")
}

// MarkRead records messageIDs as read by userID. Read implies delivered.
func (s *MessagingService) MarkRead(ctx context.Context, userID string, messageIDs []string) ([]*models.Receipt, error) {
	return s.markReceipts(ctx, userID, messageIDs, "read")
}

// markReceipts upserts receipts in one transaction. Ids of unknown messages
// are skipped; a malformed id or a message in a conversation the user is not
// part of fails the whole call.
func (s *MessagingService) markReceipts(ctx context.Context, userID string, messageIDs []string, kind string) ([]*models.Receipt, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	for _, id := range messageIDs {
		if _, err := uuid.Parse(id); err != nil {
			return nil, common.ErrorValidation
		}
	}

	convByMessage, err := s.repomanager.Messages(s.db).ConversationIDs(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("error resolving messages: %w", err)
	}

	checked := make(map[string]bool)
	for _, convID := range convByMessage {
		if checked[convID] {
			continue
		}
		if _, err := s.requireParticipant(ctx, convID, userID); err != nil {
			return nil, err
		}
		checked[convID] = true
	}

	at := s.now()
	var out []*models.Receipt
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Receipts(tx)
		for _, id := range messageIDs {
			if _, ok := convByMessage[id]; !ok {
				continue
			}
			var r *models.Receipt
			var err error
			if kind == "read" {
				r, err = repo.MarkRead(ctx, id, userID, at)
			} else {
				r, err = repo.MarkDelivered(ctx, id, userID, at)
			}
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error marking %s: %w", kind, err)
	}

	if s.metrics != nil {
		s.metrics.ReceiptsMarked.WithLabelValues(kind).Add(float64(len(out)))
	}
	for _, r := range out {
		s.publish(ctx, &models.Event{
			Kind:           models.EventReceipt,
			ConversationID: convByMessage[r.MessageID],
			UserID:         userID,
			Receipt:        r,
			At:             at,
		})
	}
	return out, nil
}

// HideMessage removes a message from the caller's listings only.
func (s *MessagingService) HideMessage(ctx context.Context, userID, messageID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return common.ErrorNotFound
	}
	m, err := s.repomanager.Messages(s.db).GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error loading message: %w", err)
	}
	if _, err := s.requireParticipant(ctx, m.ConversationID, userID); err != nil {
		return err
	}
	if err := s.repomanager.Messages(s.db).Hide(ctx, messageID, userID); err != nil {
		return fmt.Errorf("error hiding message: %w", err)
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/cryptox"
	"github.com/agrolink/agrolink/internal/rpc"
	"github.com/google/uuid"
)

const defaultMimeType = "text/plain"

// LoadMessages returns every message of the conversation visible to the
// user, oldest first. Bodies that cannot be decrypted carry
// common.DecryptFailedPlaceholder. Messages sent by the user carry a status
// derived from the other participants' receipts.
func (s *MessagingService) LoadMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error) {
	sess, err := s.requireUser(userID)
	if err != nil {
		return nil, err
	}

	list, err := s.client.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	key, err := s.conversationKey(ctx, sess, conversationID)
	if err != nil && !errors.Is(err, common.ErrNoConversationKey) {
		s.logger.Warn(ctx, "conversation key unavailable", "conversation_id", conversationID, "error", err)
	}

	out := make([]*models.Message, 0, len(list))
	for _, m := range list {
		msg := s.decryptMessage(key, m)
		if m.SenderID == userID {
			msg.Status = models.StatusFromReceipts(userID, receiptsFromRPC(m.Receipts))
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// decryptMessage never fails: a nil key or a bad ciphertext yields the
// placeholder.
func (s *MessagingService) decryptMessage(key []byte, m *rpc.Message) *models.Message {
	msg := &models.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		MimeType:       m.MimeType,
		CreatedAt:      m.CreatedAt,
		Seq:            m.Seq,
	}
	if key == nil {
		msg.Text, msg.DecryptFailed = common.DecryptFailedPlaceholder, true
		return msg
	}
	text, err := cryptox.DecryptText(key, m.IV, m.Ciphertext)
	if err != nil {
		s.logger.Debug(context.Background(), "message decrypt failed", "message_id", m.ID, "error", err)
		msg.Text, msg.DecryptFailed = common.DecryptFailedPlaceholder, true
		return msg
	}
	msg.Text = text
	return msg
}

// SendMessage encrypts text with the conversation key and stores it. It does
// not retry; see SendOrQueue.
func (s *MessagingService) SendMessage(ctx context.Context, conversationID, senderID, text, mimeType string) (*models.Message, error) {
	sess, err := s.requireUser(senderID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, sess, uuid.NewString(), conversationID, text, mimeType)
}

func (s *MessagingService) send(ctx context.Context, sess *Session, id, conversationID, text, mimeType string) (*models.Message, error) {
	if conversationID == "" {
		return nil, common.ErrorValidation
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	key, err := s.conversationKey(ctx, sess, conversationID)
	if err != nil {
		return nil, err
	}
	iv, ct, err := cryptox.EncryptText(key, text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	stored, err := s.client.SendMessage(ctx, &rpc.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       sess.UserID,
		Ciphertext:     ct,
		IV:             iv,
		MimeType:       mimeType,
	})
	if err != nil {
		return nil, err
	}

	return &models.Message{
		ID:             stored.ID,
		ConversationID: stored.ConversationID,
		SenderID:       stored.SenderID,
		Text:           text,
		MimeType:       stored.MimeType,
		CreatedAt:      stored.CreatedAt,
		Seq:            stored.Seq,
		Status:         models.StatusSent,
	}, nil
}

// SendOrQueue sends the message, or queues it when the backend is
// unreachable. Exactly one of the returned message and queued item is set
// on success.
//
// The queued item keeps the id of the failed attempt. A send whose reply was
// lost after the server stored it is then recognised on flush instead of
// being stored twice.
func (s *MessagingService) SendOrQueue(ctx context.Context, conversationID, senderID, text, mimeType string) (*models.Message, *models.QueuedItem, error) {
	sess, err := s.requireUser(senderID)
	if err != nil {
		return nil, nil, err
	}
	id := uuid.NewString()
	msg, err := s.send(ctx, sess, id, conversationID, text, mimeType)
	if err == nil {
		return msg, nil, nil
	}
	if !errors.Is(err, client.ErrUnavailable) || s.queue == nil {
		return nil, nil, err
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	item := s.queue.AddMessageWithID(ctx, id, conversationID, senderID, text, mimeType)
	return nil, item, nil
}

// FlushQueue retries every pending queued message and participant add that
// belongs to the signed-in user. Successes are removed, failures count one
// attempt. The returned error joins all failures.
func (s *MessagingService) FlushQueue(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	sess, err := s.currentSession()
	if err != nil {
		return err
	}

	var errs []error
	for _, item := range s.queue.PendingMessages() {
		if item.UserID != sess.UserID {
			continue
		}
		_, err := s.send(ctx, sess, item.ID, item.ConversationID, item.Text, item.MimeType)
		if err == nil {
			s.queue.RemoveMessage(ctx, item.ID)
			continue
		}
		errs = append(errs, fmt.Errorf("queued message %s: %w", item.ID, err))
		if err := s.queue.MarkMessageAttempted(ctx, item.ID); err != nil {
			s.logger.Warn(ctx, "failed to mark queued message", "id", item.ID, "error", err)
		}
	}

	for _, item := range s.queue.PendingParticipants() {
		err := s.addParticipantNow(ctx, sess, item.ConversationID, item.UserID)
		if err == nil || errors.Is(err, common.ErrorAlreadyExists) {
			s.queue.RemoveParticipant(ctx, item.ID)
			continue
		}
		errs = append(errs, fmt.Errorf("queued participant %s: %w", item.ID, err))
		if err := s.queue.MarkParticipantAttempted(ctx, item.ID); err != nil {
			s.logger.Warn(ctx, "failed to mark queued participant", "id", item.ID, "error", err)
		}
	}

	return errors.Join(errs...)
}

// MarkDelivered records delivery of the given messages for the signed-in
// user. Repeating it is harmless.
func (s *MessagingService) MarkDelivered(ctx context.Context, messageIDs []string) ([]*models.Receipt, error) {
	if _, err := s.currentSession(); err != nil {
		return nil, err
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rs, err := s.client.MarkDelivered(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	return receiptsFromRPC(rs), nil
}

// MarkRead records that the signed-in user read the given messages, which
// also marks them delivered.
func (s *MessagingService) MarkRead(ctx context.Context, messageIDs []string) ([]*models.Receipt, error) {
	if _, err := s.currentSession(); err != nil {
		return nil, err
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rs, err := s.client.MarkRead(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	return receiptsFromRPC(rs), nil
}

// HideMessage removes a message from the signed-in user's view only.
func (s *MessagingService) HideMessage(ctx context.Context, messageID string) error {
	if _, err := s.currentSession(); err != nil {
		return err
	}
	return s.client.HideMessage(ctx, messageID)
}

// SendTyping broadcasts a typing event. It is never persisted.
func (s *MessagingService) SendTyping(ctx context.Context, conversationID string) error {
	if _, err := s.currentSession(); err != nil {
		return err
	}
	return s.client.SendTyping(ctx, conversationID)
}

func receiptsFromRPC(rs []*rpc.Receipt) []*models.Receipt {
	out := make([]*models.Receipt, 0, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		out = append(out, receiptFromRPC(r))
	}
	return out
}

func receiptFromRPC(r *rpc.Receipt) *models.Receipt {
	return &models.Receipt{
		MessageID:   r.MessageID,
		UserID:      r.UserID,
		DeliveredAt: r.DeliveredAt,
		ReadAt:      r.ReadAt,
	}
}

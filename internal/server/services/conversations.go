package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/dbx"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/google/uuid"
)

// EnsureResult is the outcome of EnsureConversation.
type EnsureResult struct {
	Conversation *models.Conversation
	Created      bool
	// Key is the caller's participant row carrying the wrapped conversation key.
	Key *models.Participant
}

// EnsureConversation returns the direct conversation between userID and
// otherUserID, creating it when it does not exist yet. keys must hold a
// wrapped conversation key for both users; they are only stored on creation,
// so a caller that lost the race gets the winner's key back.
func (s *MessagingService) EnsureConversation(ctx context.Context, userID, otherUserID string,
	keys map[string]*models.Participant) (*EnsureResult, error) {

	if otherUserID == "" {
		return nil, common.ErrorValidation
	}
	if otherUserID == userID {
		return nil, common.ErrSelfConversation
	}

	pairKey := common.PairKey(userID, otherUserID)

	existing, err := s.repomanager.Conversations(s.db).GetByPairKey(ctx, pairKey)
	switch {
	case err == nil:
		return s.existingResult(ctx, existing, userID)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("error looking up conversation: %w", err)
	}

	for _, id := range []string{userID, otherUserID} {
		k, ok := keys[id]
		if !ok || k == nil || len(k.KeyCiphertext) == 0 || len(k.KeyEphemeralPublic) == 0 || len(k.KeyNonce) == 0 {
			return nil, common.ErrNoConversationKey
		}
	}

	known, err := s.repomanager.Users(s.db).GetPublicKeys(ctx, []string{otherUserID})
	if err != nil {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}
	if _, ok := known[otherUserID]; !ok {
		return nil, common.ErrorNotFound
	}

	var created *models.Conversation
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.repomanager.Conversations(tx).Create(ctx, &models.Conversation{
			ID:        uuid.NewString(),
			PairKey:   pairKey,
			CreatedBy: userID,
		})
		if err != nil {
			return err
		}
		pr := s.repomanager.Participants(tx)
		for _, id := range []string{userID, otherUserID} {
			k := keys[id]
			if err := pr.Add(ctx, &models.Participant{
				ConversationID:     c.ID,
				UserID:             id,
				KeyEphemeralPublic: k.KeyEphemeralPublic,
				KeyNonce:           k.KeyNonce,
				KeyCiphertext:      k.KeyCiphertext,
			}); err != nil {
				return err
			}
		}
		created = c
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			// Created concurrently by the other side.
			existing, err := s.repomanager.Conversations(s.db).GetByPairKey(ctx, pairKey)
			if err != nil {
				return nil, fmt.Errorf("error loading concurrent conversation: %w", err)
			}
			return s.existingResult(ctx, existing, userID)
		}
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ConversationsCreated.Inc()
	}
	s.logger.Info(ctx, "conversation created", "conversation_id", created.ID, "created_by", userID)

	created.ParticipantIDs = []string{userID, otherUserID}
	slices.Sort(created.ParticipantIDs)
	k := keys[userID]
	return &EnsureResult{
		Conversation: created,
		Created:      true,
		Key: &models.Participant{
			ConversationID:     created.ID,
			UserID:             userID,
			KeyEphemeralPublic: k.KeyEphemeralPublic,
			KeyNonce:           k.KeyNonce,
			KeyCiphertext:      k.KeyCiphertext,
		},
	}, nil
}

func (s *MessagingService) existingResult(ctx context.Context, c *models.Conversation, userID string) (*EnsureResult, error) {
	key, err := s.requireParticipant(ctx, c.ID, userID)
	if err != nil {
		return nil, err
	}
	ids, err := s.repomanager.Participants(s.db).UserIDsByConversation(ctx, []string{c.ID})
	if err != nil {
		return nil, fmt.Errorf("error loading participants: %w", err)
	}
	c.ParticipantIDs = ids[c.ID]
	return &EnsureResult{Conversation: c, Key: key}, nil
}

// GetConversationKey returns the caller's wrapped key for a conversation.
func (s *MessagingService) GetConversationKey(ctx context.Context, userID, conversationID string) (*models.Participant, error) {
	p, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if len(p.KeyCiphertext) == 0 {
		return nil, common.ErrNoConversationKey
	}
	return p, nil
}

// AddParticipant lets an existing member add another user together with the
// conversation key wrapped for them. Adding a member twice is a no-op.
func (s *MessagingService) AddParticipant(ctx context.Context, userID string, p *models.Participant) error {
	if p == nil || p.UserID == "" {
		return common.ErrorValidation
	}
	if len(p.KeyCiphertext) == 0 || len(p.KeyEphemeralPublic) == 0 || len(p.KeyNonce) == 0 {
		return common.ErrNoConversationKey
	}
	if _, err := s.requireParticipant(ctx, p.ConversationID, userID); err != nil {
		return err
	}

	known, err := s.repomanager.Users(s.db).GetPublicKeys(ctx, []string{p.UserID})
	if err != nil {
		return fmt.Errorf("error looking up user: %w", err)
	}
	if _, ok := known[p.UserID]; !ok {
		return common.ErrorNotFound
	}

	if err := s.repomanager.Participants(s.db).Add(ctx, p); err != nil {
		return fmt.Errorf("error adding participant: %w", err)
	}
	return nil
}

// ListConversations returns the user's non-archived conversations, newest
// first, with participant ids and unread counts filled in.
func (s *MessagingService) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	list, err := s.repomanager.Conversations(s.db).ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing conversations: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	members, err := s.repomanager.Participants(s.db).UserIDsByConversation(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("error loading participants: %w", err)
	}
	unread, err := s.repomanager.Messages(s.db).UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading unread counts: %w", err)
	}
	for _, c := range list {
		c.ParticipantIDs = members[c.ID]
		c.UnreadCount = unread[c.ID]
	}
	return list, nil
}

// GetConversationsParticipants maps each requested conversation to its other
// members. Conversations the caller is not part of are left out.
func (s *MessagingService) GetConversationsParticipants(ctx context.Context, userID string, conversationIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(conversationIDs))
	valid := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return out, nil
	}
	members, err := s.repomanager.Participants(s.db).UserIDsByConversation(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("error loading participants: %w", err)
	}
	for convID, ids := range members {
		if !slices.Contains(ids, userID) {
			continue
		}
		others := make([]string, 0, len(ids)-1)
		for _, id := range ids {
			if id != userID {
				others = append(others, id)
			}
		}
		out[convID] = others
	}
	return out, nil
}

// GetUnreadCounts returns conversation id to unread message count. Only
// conversations with unread messages are present.
func (s *MessagingService) GetUnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	counts, err := s.repomanager.Messages(s.db).UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading unread counts: %w", err)
	}
	return counts, nil
}

// ArchiveConversation hides a conversation from the caller's list.
func (s *MessagingService) ArchiveConversation(ctx context.Context, userID, conversationID string) error {
	if conversationID == "" {
		return common.ErrorValidation
	}
	if err := s.repomanager.Participants(s.db).Archive(ctx, conversationID, userID); err != nil {
		if errors.Is(err, common.ErrNotParticipant) {
			return common.ErrNotParticipant
		}
		return fmt.Errorf("error archiving conversation: %w", err)
	}
	return nil
}

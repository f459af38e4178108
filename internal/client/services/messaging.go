package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/client/offline"
	"github.com/agrolink/agrolink/internal/client/repositories/keys"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/cryptox"
	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/rpc"
)

// MessagingConfig carries the optional collaborators of MessagingService.
type MessagingConfig struct {
	// AttachmentDir receives encrypted attachments when the server has no
	// object storage. Defaults to "attachments".
	AttachmentDir string
	// HTTPClient is used for presigned uploads and downloads.
	HTTPClient *http.Client
}

// MessagingService is the client side of conversations, messages, receipts,
// realtime events and attachments. It is safe for concurrent use.
//
// Every operation that takes a user id requires it to be the signed-in user
// and returns client.ErrUnauthorized otherwise.
type MessagingService struct {
	client        client.Client
	keys          keys.Repository
	queue         *offline.Queue
	logger        logging.Logger
	httpClient    *http.Client
	attachmentDir string

	mu      sync.RWMutex
	session *Session
}

func NewMessagingService(c client.Client, keyRepo keys.Repository, q *offline.Queue, l logging.Logger, cfg MessagingConfig) *MessagingService {
	if cfg.AttachmentDir == "" {
		cfg.AttachmentDir = "attachments"
	}
	return &MessagingService{
		client:        c,
		keys:          keyRepo,
		queue:         q,
		logger:        l.With("component", "messaging"),
		httpClient:    cfg.HTTPClient,
		attachmentDir: cfg.AttachmentDir,
	}
}

// SetSession installs the signed-in user. A nil session signs out.
func (s *MessagingService) SetSession(sess *Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func (s *MessagingService) currentSession() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, client.ErrUnauthorized
	}
	return s.session, nil
}

// requireUser checks that userID is the signed-in user.
func (s *MessagingService) requireUser(userID string) (*Session, error) {
	sess, err := s.currentSession()
	if err != nil {
		return nil, err
	}
	if userID == "" || sess.UserID != userID {
		return nil, client.ErrUnauthorized
	}
	return sess, nil
}

// conversationKey returns the local key for a conversation, fetching and
// unwrapping it from the server when it is not stored yet. A conversation
// without a key for this user yields common.ErrNoConversationKey.
func (s *MessagingService) conversationKey(ctx context.Context, sess *Session, conversationID string) ([]byte, error) {
	b64, err := s.keys.GetStoredKey(ctx, conversationID)
	if err == nil {
		return cryptox.ImportKeyBase64(b64)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	wrapped, err := s.client.GetConversationKey(ctx, conversationID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, common.ErrNoConversationKey
		}
		return nil, err
	}
	return s.storeWrappedKey(ctx, sess, conversationID, wrapped)
}

func (s *MessagingService) storeWrappedKey(ctx context.Context, sess *Session, conversationID string, w *rpc.WrappedKey) ([]byte, error) {
	if w == nil {
		return nil, common.ErrNoConversationKey
	}
	key, err := cryptox.UnwrapKey(sess.Identity, &cryptox.WrappedKey{
		EphemeralPublic: w.EphemeralPublic,
		Nonce:           w.Nonce,
		Ciphertext:      w.Ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("unwrap conversation key: %w", err)
	}
	if err := s.keys.StoreKey(ctx, conversationID, cryptox.ExportKeyBase64(key)); err != nil {
		return nil, err
	}
	return key, nil
}

func wrapFor(userID string, publicKey, convKey []byte) (*rpc.WrappedKey, error) {
	w, err := cryptox.WrapKey(publicKey, convKey)
	if err != nil {
		return nil, fmt.Errorf("wrap key for %s: %w", userID, err)
	}
	return &rpc.WrappedKey{
		UserID:          userID,
		EphemeralPublic: w.EphemeralPublic,
		Nonce:           w.Nonce,
		Ciphertext:      w.Ciphertext,
	}, nil
}

// EnsureConversationWith returns the conversation between userID and
// otherUserID, creating it on first contact. The same pair always resolves to
// the same conversation regardless of argument order. A fresh conversation
// key is wrapped for both users; when the conversation already exists the
// server keeps the stored keys and returns the caller's.
func (s *MessagingService) EnsureConversationWith(ctx context.Context, userID, otherUserID string) (*models.Conversation, error) {
	sess, err := s.requireUser(userID)
	if err != nil {
		return nil, err
	}
	if otherUserID == "" {
		return nil, common.ErrorValidation
	}
	if otherUserID == userID {
		return nil, common.ErrSelfConversation
	}

	pubs, err := s.client.GetPublicKeys(ctx, []string{userID, otherUserID})
	if err != nil {
		return nil, err
	}
	if len(pubs[otherUserID]) == 0 {
		return nil, client.ErrNotFound
	}
	if len(pubs[userID]) == 0 {
		pubs[userID] = sess.Identity.PublicKey().Bytes()
	}

	convKey, err := cryptox.GenerateConversationKey()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(convKey)

	wrapped := make([]*rpc.WrappedKey, 0, 2)
	for _, id := range []string{userID, otherUserID} {
		w, err := wrapFor(id, pubs[id], convKey)
		if err != nil {
			return nil, err
		}
		wrapped = append(wrapped, w)
	}

	resp, err := s.client.EnsureConversation(ctx, otherUserID, wrapped)
	if err != nil {
		return nil, err
	}
	if resp.Conversation == nil {
		return nil, fmt.Errorf("ensure conversation: empty response")
	}
	if _, err := s.storeWrappedKey(ctx, sess, resp.Conversation.ID, resp.Key); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "conversation ready", "conversation_id", resp.Conversation.ID, "created", resp.Created)
	return conversationFromRPC(resp.Conversation), nil
}

// ListConversations returns the user's non-archived conversations, newest
// first.
func (s *MessagingService) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	if _, err := s.requireUser(userID); err != nil {
		return nil, err
	}
	list, err := s.client.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Conversation, 0, len(list))
	for _, c := range list {
		out = append(out, conversationFromRPC(c))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetConversationsParticipants maps each conversation id to the ids of the
// other participants. The current user is never included.
func (s *MessagingService) GetConversationsParticipants(ctx context.Context, conversationIDs []string, currentUserID string) (map[string][]string, error) {
	if _, err := s.requireUser(currentUserID); err != nil {
		return nil, err
	}
	if len(conversationIDs) == 0 {
		return map[string][]string{}, nil
	}
	got, err := s.client.GetConversationsParticipants(ctx, conversationIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(got))
	for convID, ids := range got {
		others := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != currentUserID {
				others = append(others, id)
			}
		}
		out[convID] = others
	}
	return out, nil
}

// GetUnreadCountByConversation maps conversation id to the number of
// messages from others the user has not read. Conversations with nothing
// unread are absent.
func (s *MessagingService) GetUnreadCountByConversation(ctx context.Context, userID string) (map[string]int64, error) {
	if _, err := s.requireUser(userID); err != nil {
		return nil, err
	}
	counts, err := s.client.GetUnreadCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(counts))
	for id, n := range counts {
		if n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

// AddParticipant wraps the conversation key for userID and adds them to the
// conversation. When the backend is unreachable the add is queued and the
// queued item is returned with a nil error.
func (s *MessagingService) AddParticipant(ctx context.Context, conversationID, userID string) (*models.QueuedItem, error) {
	sess, err := s.currentSession()
	if err != nil {
		return nil, err
	}
	err = s.addParticipantNow(ctx, sess, conversationID, userID)
	if errors.Is(err, client.ErrUnavailable) && s.queue != nil {
		return s.queue.AddParticipant(ctx, conversationID, userID), nil
	}
	return nil, err
}

func (s *MessagingService) addParticipantNow(ctx context.Context, sess *Session, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return common.ErrorValidation
	}
	key, err := s.conversationKey(ctx, sess, conversationID)
	if err != nil {
		return err
	}
	pubs, err := s.client.GetPublicKeys(ctx, []string{userID})
	if err != nil {
		return err
	}
	if len(pubs[userID]) == 0 {
		return client.ErrNotFound
	}
	w, err := wrapFor(userID, pubs[userID], key)
	if err != nil {
		return err
	}
	return s.client.AddParticipant(ctx, conversationID, w)
}

// ArchiveConversation hides the conversation from the caller's list. Other
// participants are not affected.
func (s *MessagingService) ArchiveConversation(ctx context.Context, conversationID string) error {
	if _, err := s.currentSession(); err != nil {
		return err
	}
	return s.client.ArchiveConversation(ctx, conversationID)
}

func conversationFromRPC(c *rpc.Conversation) *models.Conversation {
	return &models.Conversation{
		ID:             c.ID,
		ParticipantIDs: append([]string(nil), c.ParticipantIDs...),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		LastMessageAt:  c.LastMessageAt,
		LastMessageID:  c.LastMessageID,
		UnreadCount:    c.UnreadCount,
	}
}

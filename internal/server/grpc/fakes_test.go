package grpc

import (
	"context"
	"sync"

	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/agrolink/agrolink/internal/server/services"
)

type fakeUsers struct {
	regIn   *models.User
	regResp *models.User
	regErr  error

	saltResp []byte
	saltErr  error

	loginResp *services.LoginResult
	loginErr  error

	keys map[string][]byte
}

func (f *fakeUsers) Register(ctx context.Context, u *models.User) (*models.User, error) {
	f.regIn = u
	return f.regResp, f.regErr
}
func (f *fakeUsers) GetSalt(ctx context.Context, username string) ([]byte, error) {
	return f.saltResp, f.saltErr
}
func (f *fakeUsers) Login(ctx context.Context, username string, verifierCandidate []byte) (*services.LoginResult, error) {
	return f.loginResp, f.loginErr
}
func (f *fakeUsers) GetPublicKeys(ctx context.Context, ids []string) (map[string][]byte, error) {
	return f.keys, nil
}

// fakeMessaging implements the methods the tests exercise; the embedded nil
// interface panics on anything else.
type fakeMessaging struct {
	MessagingService

	mu         sync.Mutex
	lastUserID string
	ensureKeys map[string]*models.Participant
	sent       *models.Message
	err        error
	events     chan *models.Event
	cancelled  bool
}

func (f *fakeMessaging) record(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUserID = userID
}

func (f *fakeMessaging) EnsureConversation(ctx context.Context, userID, other string, keys map[string]*models.Participant) (*services.EnsureResult, error) {
	f.record(userID)
	f.ensureKeys = keys
	if f.err != nil {
		return nil, f.err
	}
	mine := keys[userID]
	return &services.EnsureResult{
		Conversation: &models.Conversation{ID: "c1", ParticipantIDs: []string{userID, other}},
		Created:      true,
		Key:          mine,
	}, nil
}

func (f *fakeMessaging) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	f.record(userID)
	lastID := "m1"
	return []*models.Conversation{{ID: "c1", LastMessageID: &lastID, UnreadCount: 3}}, f.err
}

func (f *fakeMessaging) SendMessage(ctx context.Context, userID string, m *models.Message) (*models.Message, error) {
	f.record(userID)
	if f.err != nil {
		return nil, f.err
	}
	cp := *m
	cp.SenderID = userID
	cp.Seq = 7
	f.sent = &cp
	return &cp, nil
}

func (f *fakeMessaging) MarkRead(ctx context.Context, userID string, ids []string) ([]*models.Receipt, error) {
	f.record(userID)
	var out []*models.Receipt
	for _, id := range ids {
		out = append(out, &models.Receipt{MessageID: id, UserID: userID})
	}
	return out, f.err
}

func (f *fakeMessaging) Subscribe(ctx context.Context, userID, conversationID string) (<-chan *models.Event, func(), error) {
	f.record(userID)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.events, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeMessaging) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type fakeAttachments struct {
	upload *models.AttachmentUpload
	err    error
}

func (f *fakeAttachments) RequestUpload(ctx context.Context, userID, conversationID, fileName, mimeType string, size int64) (*models.AttachmentUpload, error) {
	return f.upload, f.err
}

func (f *fakeAttachments) GetDownloadURL(ctx context.Context, userID, conversationID, key string) (string, error) {
	return "https://s3.example/" + key, f.err
}

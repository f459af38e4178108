package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/offline"
	"github.com/agrolink/agrolink/internal/client/repositories/keys"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/cryptox"
	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/rpc"
	"github.com/stretchr/testify/require"
)

/*************
 * In-memory backend
 *************/

// fakeBackend keeps just enough server state for the client services. The
// caller is whoever `as` names; tests switch it between users.
type fakeBackend struct {
	mu sync.Mutex
	as string

	// failure injection
	pingErr     error
	closeErr    error
	registerErr error
	saltErr     error
	loginErr    error
	sendErr     error
	addErr      error
	// lostReplies makes SendMessage store the message and then report the
	// backend unreachable, as when the reply times out.
	lostReplies int
	uploadErr   error

	registered *rpc.RegisterUserRequest
	salt       []byte
	loginResp  *rpc.LoginResponse
	loginUser  string
	loginVer   []byte

	publicKeys   map[string][]byte
	convs        map[string]*rpc.Conversation
	convKeys     map[string]map[string]*rpc.WrappedKey
	messages     map[string][]*rpc.Message
	archived     map[string]bool
	hidden       []string
	typing       []string
	unread       map[string]int64
	delivered    []string
	read         []string
	ensureCalls  int
	sendCalls    int
	uploadReq    *rpc.RequestAttachmentUploadRequest
	uploadResp   *rpc.RequestAttachmentUploadResponse
	attachmentAt string
	streams      map[string][]*fakeStream
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		publicKeys: map[string][]byte{},
		convs:      map[string]*rpc.Conversation{},
		convKeys:   map[string]map[string]*rpc.WrappedKey{},
		messages:   map[string][]*rpc.Message{},
		archived:   map[string]bool{},
		unread:     map[string]int64{},
		streams:    map[string][]*fakeStream{},
	}
}

var _ client.Client = (*fakeBackend)(nil)

func (f *fakeBackend) actAs(userID string) {
	f.mu.Lock()
	f.as = userID
	f.mu.Unlock()
}

func (f *fakeBackend) Close() error                   { return f.closeErr }
func (f *fakeBackend) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeBackend) Register(ctx context.Context, req *rpc.RegisterUserRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = req
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return "user-" + req.Username, nil
}

func (f *fakeBackend) GetSalt(ctx context.Context, username string) ([]byte, error) {
	return append([]byte(nil), f.salt...), f.saltErr
}

func (f *fakeBackend) Login(ctx context.Context, username string, verifier []byte) (*rpc.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginUser = username
	f.loginVer = append([]byte(nil), verifier...)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.as = f.loginResp.UserID
	return f.loginResp, nil
}

func (f *fakeBackend) GetPublicKeys(ctx context.Context, userIDs []string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]byte{}
	for _, id := range userIDs {
		if pk, ok := f.publicKeys[id]; ok {
			out[id] = pk
		}
	}
	return out, nil
}

func (f *fakeBackend) EnsureConversation(ctx context.Context, otherUserID string, keys []*rpc.WrappedKey) (*rpc.EnsureConversationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	id := "conv-" + common.PairKey(f.as, otherUserID)
	conv, ok := f.convs[id]
	if !ok {
		now := time.Now().UTC()
		conv = &rpc.Conversation{ID: id, ParticipantIDs: []string{f.as, otherUserID}, CreatedAt: now, UpdatedAt: now}
		f.convs[id] = conv
		f.convKeys[id] = map[string]*rpc.WrappedKey{}
		for _, k := range keys {
			f.convKeys[id][k.UserID] = k
		}
	}
	return &rpc.EnsureConversationResponse{Conversation: conv, Created: !ok, Key: f.convKeys[id][f.as]}, nil
}

func (f *fakeBackend) GetConversationKey(ctx context.Context, conversationID string) (*rpc.WrappedKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.convKeys[conversationID][f.as]
	if !ok {
		return nil, client.ErrNotFound
	}
	return k, nil
}

func (f *fakeBackend) AddParticipant(ctx context.Context, conversationID string, key *rpc.WrappedKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	conv, ok := f.convs[conversationID]
	if !ok {
		return client.ErrNotFound
	}
	if _, ok := f.convKeys[conversationID][key.UserID]; ok {
		return common.ErrorAlreadyExists
	}
	conv.ParticipantIDs = append(conv.ParticipantIDs, key.UserID)
	f.convKeys[conversationID][key.UserID] = key
	return nil
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]*rpc.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*rpc.Conversation
	for id, c := range f.convs {
		if _, member := f.convKeys[id][f.as]; member && !f.archived[id+"/"+f.as] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) GetConversationsParticipants(ctx context.Context, conversationIDs []string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]string{}
	for _, id := range conversationIDs {
		if c, ok := f.convs[id]; ok {
			out[id] = append([]string(nil), c.ParticipantIDs...)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetUnreadCounts(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int64{}
	for k, v := range f.unread {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) ArchiveConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived[conversationID+"/"+f.as] = true
	return nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, conversationID string) ([]*rpc.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*rpc.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, m *rpc.Message) (*rpc.Message, error) {
	f.mu.Lock()
	f.sendCalls++
	if f.sendErr != nil {
		f.mu.Unlock()
		return nil, f.sendErr
	}
	for _, existing := range f.messages[m.ConversationID] {
		if existing.ID == m.ID {
			f.mu.Unlock()
			return existing, nil
		}
	}
	stored := *m
	stored.Seq = int64(len(f.messages[m.ConversationID]) + 1)
	stored.CreatedAt = time.Now().UTC()
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], &stored)
	streams := append([]*fakeStream(nil), f.streams[m.ConversationID]...)
	lost := f.lostReplies > 0
	if lost {
		f.lostReplies--
	}
	f.mu.Unlock()

	for _, s := range streams {
		s.push(&rpc.Event{Kind: rpc.EventMessage, ConversationID: m.ConversationID, Message: &stored, At: stored.CreatedAt})
	}
	if lost {
		return nil, client.ErrUnavailable
	}
	return &stored, nil
}

func (f *fakeBackend) MarkDelivered(ctx context.Context, messageIDs []string) ([]*rpc.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, messageIDs...)
	now := time.Now().UTC()
	out := make([]*rpc.Receipt, 0, len(messageIDs))
	for _, id := range messageIDs {
		out = append(out, &rpc.Receipt{MessageID: id, UserID: f.as, DeliveredAt: &now})
	}
	return out, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, messageIDs []string) ([]*rpc.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, messageIDs...)
	now := time.Now().UTC()
	out := make([]*rpc.Receipt, 0, len(messageIDs))
	for _, id := range messageIDs {
		out = append(out, &rpc.Receipt{MessageID: id, UserID: f.as, DeliveredAt: &now, ReadAt: &now})
	}
	return out, nil
}

func (f *fakeBackend) HideMessage(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden = append(f.hidden, messageID)
	return nil
}

func (f *fakeBackend) SendTyping(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, conversationID)
	return nil
}

func (f *fakeBackend) RequestAttachmentUpload(ctx context.Context, req *rpc.RequestAttachmentUploadRequest) (*rpc.RequestAttachmentUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadReq = req
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if f.uploadResp == nil {
		return &rpc.RequestAttachmentUploadResponse{}, nil
	}
	return f.uploadResp, nil
}

func (f *fakeBackend) GetAttachmentURL(ctx context.Context, conversationID, key string) (string, error) {
	return f.attachmentAt, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, conversationID string) (client.EventStream, error) {
	s := &fakeStream{ctx: ctx, ch: make(chan *rpc.Event, 16)}
	f.mu.Lock()
	f.streams[conversationID] = append(f.streams[conversationID], s)
	f.mu.Unlock()
	return s, nil
}

// publish sends ev to every subscriber of its conversation.
func (f *fakeBackend) publish(ev *rpc.Event) {
	f.mu.Lock()
	streams := append([]*fakeStream(nil), f.streams[ev.ConversationID]...)
	f.mu.Unlock()
	for _, s := range streams {
		s.push(ev)
	}
}

type fakeStream struct {
	ctx context.Context
	ch  chan *rpc.Event
}

func (s *fakeStream) push(ev *rpc.Event) {
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

func (s *fakeStream) Recv() (*rpc.Event, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

/*************
 * Helpers
 *************/

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type testUser struct {
	id      string
	session *Session
	svc     *MessagingService
	keys    keys.Repository
	queue   *offline.Queue
}

// newTestUser registers a public key with the backend and returns a signed-in
// messaging service with its own local database.
func newTestUser(t *testing.T, be *fakeBackend, id string) *testUser {
	t.Helper()
	identity, err := cryptox.GenerateIdentityKey()
	require.NoError(t, err)

	be.mu.Lock()
	be.publicKeys[id] = identity.PublicKey().Bytes()
	be.mu.Unlock()

	db := openTestDB(t)
	repo := keys.NewSQLiteRepository(db)
	q := offline.New(nil, logging.NewNopLogger(), time.Hour)
	svc := NewMessagingService(be, repo, q, logging.NewNopLogger(), MessagingConfig{AttachmentDir: t.TempDir()})
	sess := &Session{UserID: id, UserName: id, Identity: identity, Online: true}
	svc.SetSession(sess)
	return &testUser{id: id, session: sess, svc: svc, keys: repo, queue: q}
}

// pairUp creates a conversation between a and b on behalf of a.
func pairUp(t *testing.T, be *fakeBackend, a, b *testUser) string {
	t.Helper()
	be.actAs(a.id)
	conv, err := a.svc.EnsureConversationWith(context.Background(), a.id, b.id)
	require.NoError(t, err)
	return conv.ID
}

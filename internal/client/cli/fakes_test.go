package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agrolink/agrolink/internal/client/config"
	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/client/offline"
	"github.com/agrolink/agrolink/internal/client/services"
	"github.com/agrolink/agrolink/internal/logging"
)

type fakeAuth struct {
	regUser string
	regPass []byte
	regErr  error

	onlineSess *services.Session
	onlineErr  error

	offlineSess *services.Session
	offlineErr  error
	offlineUser string

	pingErr     error
	clearCalled bool
	clearErr    error
}

func (f *fakeAuth) Register(_ context.Context, user string, pass []byte) error {
	f.regUser, f.regPass = user, append([]byte(nil), pass...)
	return f.regErr
}
func (f *fakeAuth) OnlineLogin(_ context.Context, user string, pass []byte) (*services.Session, error) {
	return f.onlineSess, f.onlineErr
}
func (f *fakeAuth) OfflineLogin(_ context.Context, user string, pass []byte) (*services.Session, error) {
	f.offlineUser = user
	return f.offlineSess, f.offlineErr
}
func (f *fakeAuth) ClearOfflineData(context.Context) error {
	f.clearCalled = true
	return f.clearErr
}
func (f *fakeAuth) Close(ctx context.Context) error { return nil }
func (f *fakeAuth) Ping(ctx context.Context) error  { return f.pingErr }

type fakeQueue struct {
	mu       sync.Mutex
	stats    offline.Stats
	purged   int
	started  int
	stopped  int
	retryFns []offline.RetryFunc
}

func (q *fakeQueue) Stats() offline.Stats { return q.stats }
func (q *fakeQueue) PurgeAbandoned(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.purged
}
func (q *fakeQueue) StartRetry(ctx context.Context, fn offline.RetryFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.started++
	q.retryFns = append(q.retryFns, fn)
}
func (q *fakeQueue) StopRetry() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped++
}

// fakeMessenger records calls and serves canned results.
type fakeMessenger struct {
	mu sync.Mutex

	session  *services.Session
	convs    []*models.Conversation
	others   map[string][]string
	unread   map[string]int64
	messages map[string][]*models.Message

	sendErr   error
	queueSend bool
	sent      []string
	read      []string
	hidden    []string
	typing    []string
	archived  []string
	added     []string
	flushed   int
	flushErr  error
	attachErr error
	openData  []byte

	subscribed int
	onMessage  func(*models.Message)
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{others: map[string][]string{}, unread: map[string]int64{}, messages: map[string][]*models.Message{}}
}

func (m *fakeMessenger) SetSession(sess *services.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = sess
}
func (m *fakeMessenger) EnsureConversationWith(ctx context.Context, userID, other string) (*models.Conversation, error) {
	return &models.Conversation{ID: "conv-" + other, ParticipantIDs: []string{userID, other}}, nil
}
func (m *fakeMessenger) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return m.convs, nil
}
func (m *fakeMessenger) GetConversationsParticipants(ctx context.Context, ids []string, userID string) (map[string][]string, error) {
	return m.others, nil
}
func (m *fakeMessenger) GetUnreadCountByConversation(ctx context.Context, userID string) (map[string]int64, error) {
	return m.unread, nil
}
func (m *fakeMessenger) LoadMessages(ctx context.Context, userID, convID string) ([]*models.Message, error) {
	return m.messages[convID], nil
}
func (m *fakeMessenger) SendOrQueue(ctx context.Context, convID, sender, text, mime string) (*models.Message, *models.QueuedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, nil, m.sendErr
	}
	m.sent = append(m.sent, text)
	if m.queueSend {
		return nil, &models.QueuedItem{ID: "queued-1", Kind: models.QueueKindMessage}, nil
	}
	return &models.Message{ID: "m-" + text, ConversationID: convID, SenderID: sender, Text: text, CreatedAt: time.Now(), Status: models.StatusSent}, nil, nil
}
func (m *fakeMessenger) MarkRead(ctx context.Context, ids []string) ([]*models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read = append(m.read, ids...)
	return nil, nil
}
func (m *fakeMessenger) HideMessage(ctx context.Context, id string) error {
	m.hidden = append(m.hidden, id)
	return nil
}
func (m *fakeMessenger) SendTyping(ctx context.Context, convID string) error {
	m.typing = append(m.typing, convID)
	return nil
}
func (m *fakeMessenger) ArchiveConversation(ctx context.Context, convID string) error {
	m.archived = append(m.archived, convID)
	return nil
}
func (m *fakeMessenger) AddParticipant(ctx context.Context, convID, userID string) (*models.QueuedItem, error) {
	m.added = append(m.added, userID)
	return nil, nil
}
func (m *fakeMessenger) UploadAttachment(ctx context.Context, convID, path string) (*models.Attachment, error) {
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	return &models.Attachment{Key: "k1", FileName: "photo.png", MimeType: "image/png", Size: 3}, nil
}
func (m *fakeMessenger) SendAttachment(ctx context.Context, convID, sender string, att *models.Attachment) (*models.Message, error) {
	return &models.Message{ID: "m-att", ConversationID: convID, SenderID: sender, MimeType: att.MimeType,
		Text: `{"key":"k1","file_name":"photo.png","mime_type":"image/png","size":3}`}, nil
}
func (m *fakeMessenger) OpenAttachment(ctx context.Context, convID string, att *models.Attachment) ([]byte, error) {
	return m.openData, nil
}
func (m *fakeMessenger) SubscribeMessages(ctx context.Context, convID string, cb func(*models.Message)) (services.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed++
	m.onMessage = cb
	return func() {}, nil
}
func (m *fakeMessenger) SubscribeTyping(ctx context.Context, convID string, cb func(models.TypingEvent)) (services.Unsubscribe, error) {
	return func() {}, nil
}
func (m *fakeMessenger) SubscribeReceipts(ctx context.Context, convID string, cb func(*models.Receipt)) (services.Unsubscribe, error) {
	return func() {}, nil
}
func (m *fakeMessenger) FlushQueue(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed++
	return m.flushErr
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testApp struct {
	*App
	auth *fakeAuth
	msg  *fakeMessenger
	q    *fakeQueue
	out  *syncBuffer
}

func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	ta := &testApp{auth: &fakeAuth{}, msg: newFakeMessenger(), q: &fakeQueue{}, out: &syncBuffer{}}
	ta.App = &App{
		config:      cfg,
		logger:      logging.NewNopLogger(),
		authService: ta.auth,
		messaging:   ta.msg,
		queue:       ta.q,
		reader:      bufio.NewReader(strings.NewReader(input)),
		out:         ta.out,
	}
	return ta
}

func (ta *testApp) signIn(userID string, online bool) {
	ta.startSession(context.Background(), &services.Session{UserID: userID, UserName: userID, Online: online}, ModeOnline)
}

var _ io.Writer = (*syncBuffer)(nil)

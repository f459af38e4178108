package services

import (
	"context"
	"database/sql"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/dbx"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/agrolink/agrolink/internal/server/repositories/conversations"
	"github.com/agrolink/agrolink/internal/server/repositories/messages"
	"github.com/agrolink/agrolink/internal/server/repositories/participants"
	"github.com/agrolink/agrolink/internal/server/repositories/receipts"
	"github.com/agrolink/agrolink/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newTxDB returns a real *sql.DB so dbx.WithTx can begin and commit. The
// fake repositories ignore the handle they are bound to.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// memStore is an in-memory stand-in for the Postgres schema.
type memStore struct {
	mu sync.Mutex

	clock time.Time
	seq   int64

	users    map[string]*models.User
	convs    map[string]*models.Conversation
	parts    map[string]map[string]*models.Participant
	msgs     []*models.Message
	receipts map[string]map[string]*models.Receipt
	hidden   map[string]map[string]bool

	// beforeCreateConversation runs (unlocked) before a conversation insert,
	// letting tests simulate a concurrent creator.
	beforeCreateConversation func()
	listErr                  error
}

func newMemStore() *memStore {
	return &memStore{
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		users:    map[string]*models.User{},
		convs:    map[string]*models.Conversation{},
		parts:    map[string]map[string]*models.Participant{},
		receipts: map[string]map[string]*models.Receipt{},
		hidden:   map[string]map[string]bool{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &models.User{ID: id, UserName: name, Salt: []byte("salt-" + id),
		Verifier: []byte("verifier-" + id), IdentityPublicKey: []byte("pub-" + id)}
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return &memUsers{m.s} }
func (m *fakeRepoManager) Conversations(dbx.DBTX) conversations.Repository {
	return &memConversations{m.s}
}
func (m *fakeRepoManager) Participants(dbx.DBTX) participants.Repository { return &memParticipants{m.s} }
func (m *fakeRepoManager) Messages(dbx.DBTX) messages.Repository         { return &memMessages{m.s} }
func (m *fakeRepoManager) Receipts(dbx.DBTX) receipts.Repository         { return &memReceipts{m.s} }

// --- users ---

type memUsers struct{ s *memStore }

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.users {
		if e.UserName == u.UserName {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *u
	cp.ID = "user-" + u.UserName
	cp.CreatedAt = r.s.tick()
	r.s.users[cp.ID] = &cp
	return &cp, nil
}

func (r *memUsers) GetUserByLogin(_ context.Context, name string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.UserName == name {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetPublicKeys(_ context.Context, ids []string) (map[string][]byte, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string][]byte{}
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out[id] = u.IdentityPublicKey
		}
	}
	return out, nil
}

// --- conversations ---

type memConversations struct{ s *memStore }

func (r *memConversations) Create(_ context.Context, c *models.Conversation) (*models.Conversation, error) {
	if hook := r.s.beforeCreateConversation; hook != nil {
		r.s.beforeCreateConversation = nil
		hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.convs {
		if c.PairKey != "" && e.PairKey == c.PairKey {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *c
	cp.CreatedAt = r.s.tick()
	cp.UpdatedAt = cp.CreatedAt
	r.s.convs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memConversations) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *c
	return &out, nil
}

func (r *memConversations) GetByPairKey(_ context.Context, pairKey string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.convs {
		if c.PairKey == pairKey {
			out := *c
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memConversations) ListForUser(_ context.Context, userID string) ([]*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listErr != nil {
		return nil, r.s.listErr
	}
	var out []*models.Conversation
	for id, members := range r.s.parts {
		p, ok := members[userID]
		if !ok || p.ArchivedAt != nil {
			continue
		}
		c := *r.s.convs[id]
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memConversations) TouchLastMessage(_ context.Context, convID, msgID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[convID]
	if !ok {
		return common.ErrorNotFound
	}
	c.LastMessageAt = &at
	c.LastMessageID = &msgID
	c.UpdatedAt = at
	return nil
}

// --- participants ---

type memParticipants struct{ s *memStore }

func (r *memParticipants) Add(_ context.Context, p *models.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	members, ok := r.s.parts[p.ConversationID]
	if !ok {
		members = map[string]*models.Participant{}
		r.s.parts[p.ConversationID] = members
	}
	if _, exists := members[p.UserID]; exists {
		return nil
	}
	cp := *p
	cp.JoinedAt = r.s.tick()
	members[p.UserID] = &cp
	return nil
}

func (r *memParticipants) Get(_ context.Context, convID, userID string) (*models.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.parts[convID][userID]
	if !ok {
		return nil, common.ErrNotParticipant
	}
	out := *p
	return &out, nil
}

func (r *memParticipants) UserIDsByConversation(_ context.Context, ids []string) (map[string][]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string][]string{}
	for _, id := range ids {
		for uid := range r.s.parts[id] {
			out[id] = append(out[id], uid)
		}
		slices.Sort(out[id])
	}
	return out, nil
}

func (r *memParticipants) Archive(_ context.Context, convID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.parts[convID][userID]
	if !ok {
		return common.ErrNotParticipant
	}
	at := r.s.tick()
	p.ArchivedAt = &at
	return nil
}

// --- messages ---

type memMessages struct{ s *memStore }

func (r *memMessages) Insert(_ context.Context, m *models.Message) (*models.Message, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.msgs {
		if e.ID == m.ID {
			if e.SenderID != m.SenderID || e.ConversationID != m.ConversationID {
				return nil, false, common.ErrorAlreadyExists
			}
			out := *e
			return &out, false, nil
		}
	}
	r.s.seq++
	cp := *m
	cp.Seq = r.s.seq
	cp.CreatedAt = r.s.tick()
	r.s.msgs = append(r.s.msgs, &cp)
	out := cp
	return &out, true, nil
}

func (r *memMessages) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.msgs {
		if e.ID == id {
			out := *e
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memMessages) ListByConversation(_ context.Context, convID, viewerID string) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Message
	for _, e := range r.s.msgs {
		if e.ConversationID != convID || r.s.hidden[e.ID][viewerID] {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memMessages) ConversationIDs(_ context.Context, ids []string) (map[string]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]string{}
	for _, e := range r.s.msgs {
		if slices.Contains(ids, e.ID) {
			out[e.ID] = e.ConversationID
		}
	}
	return out, nil
}

func (r *memMessages) UnreadCounts(_ context.Context, userID string) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]int64{}
	for _, e := range r.s.msgs {
		if e.SenderID == userID {
			continue
		}
		if _, member := r.s.parts[e.ConversationID][userID]; !member {
			continue
		}
		if rc, ok := r.s.receipts[e.ID][userID]; ok && rc.ReadAt != nil {
			continue
		}
		out[e.ConversationID]++
	}
	return out, nil
}

func (r *memMessages) Hide(_ context.Context, msgID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.hidden[msgID] == nil {
		r.s.hidden[msgID] = map[string]bool{}
	}
	r.s.hidden[msgID][userID] = true
	return nil
}

// --- receipts ---

type memReceipts struct{ s *memStore }

func (r *memReceipts) upsert(msgID, userID string, at time.Time, read bool) *models.Receipt {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.receipts[msgID] == nil {
		r.s.receipts[msgID] = map[string]*models.Receipt{}
	}
	rc, ok := r.s.receipts[msgID][userID]
	if !ok {
		rc = &models.Receipt{MessageID: msgID, UserID: userID}
		r.s.receipts[msgID][userID] = rc
	}
	if rc.DeliveredAt == nil {
		rc.DeliveredAt = &at
	}
	if read && rc.ReadAt == nil {
		rc.ReadAt = &at
	}
	out := *rc
	return &out
}

func (r *memReceipts) MarkDelivered(_ context.Context, msgID, userID string, at time.Time) (*models.Receipt, error) {
	return r.upsert(msgID, userID, at, false), nil
}

func (r *memReceipts) MarkRead(_ context.Context, msgID, userID string, at time.Time) (*models.Receipt, error) {
	return r.upsert(msgID, userID, at, true), nil
}

func (r *memReceipts) ListByConversation(_ context.Context, convID string) ([]*models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Receipt
	for _, m := range r.s.msgs {
		if m.ConversationID != convID {
			continue
		}
		for _, rc := range r.s.receipts[m.ID] {
			cp := *rc
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- sink and presigner ---

type recordingSink struct {
	mu   sync.Mutex
	got  []*models.Message
	fail error
}

func (s *recordingSink) MessageCreated(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, m)
	return s.fail
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type fakePresigner struct {
	putKey, putType string
	getKey          string
	err             error
}

func (p *fakePresigner) PresignPut(_ context.Context, key, contentType string) (string, error) {
	p.putKey, p.putType = key, contentType
	return "https://s3.example/put/" + key, p.err
}

func (p *fakePresigner) PresignGet(_ context.Context, key string) (string, error) {
	p.getKey = key
	return "https://s3.example/get/" + key, p.err
}

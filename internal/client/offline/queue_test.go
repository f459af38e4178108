package offline

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/client/repositories/queue"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newQueue(t *testing.T, db *sql.DB) *Queue {
	t.Helper()
	return New(queue.NewSQLiteRepository(db), logging.NewNopLogger(), time.Minute)
}

// failingRepo fails every write and returns nothing on List.
type failingRepo struct{}

var errDisk = errors.New("disk full")

func (failingRepo) Insert(context.Context, *models.QueuedItem) error { return errDisk }
func (failingRepo) Update(context.Context, *models.QueuedItem) error { return errDisk }
func (failingRepo) Get(context.Context, string) (*models.QueuedItem, error) {
	return nil, errDisk
}
func (failingRepo) Delete(context.Context, string) error { return errDisk }
func (failingRepo) List(context.Context) ([]*models.QueuedItem, error) {
	return nil, errDisk
}

func TestAddMessage_PersistsAndIsPending(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	q := newQueue(t, db)

	item := q.AddMessage(ctx, "c1", "u1", "hello", "text/plain")
	require.NotEmpty(t, item.ID)
	assert.Equal(t, models.QueueKindMessage, item.Kind)
	assert.Equal(t, 0, item.Attempts)

	pending := q.PendingMessages()
	require.Len(t, pending, 1)
	assert.Equal(t, "hello", pending[0].Text)

	stored, err := queue.NewSQLiteRepository(db).Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", stored.ConversationID)
	assert.Equal(t, "u1", stored.UserID)
}

func TestAdd_NeverFailsWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	q := New(failingRepo{}, logging.NewNopLogger(), time.Minute)

	m := q.AddMessage(ctx, "c1", "u1", "hi", "text/plain")
	p := q.AddParticipant(ctx, "c1", "u3")

	require.Len(t, q.PendingMessages(), 1)
	require.Len(t, q.PendingParticipants(), 1)
	assert.Equal(t, m.ID, q.PendingMessages()[0].ID)
	assert.Equal(t, p.ID, q.PendingParticipants()[0].ID)

	require.NoError(t, q.MarkMessageAttempted(ctx, m.ID))
	assert.Equal(t, 1, q.PendingMessages()[0].Attempts)
}

func TestPending_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	q := New(nil, logging.NewNopLogger(), 0)

	a := q.AddMessage(ctx, "c1", "u1", "a", "text/plain")
	b := q.AddMessage(ctx, "c1", "u1", "b", "text/plain")
	c := q.AddMessage(ctx, "c2", "u1", "c", "text/plain")

	pending := q.PendingMessages()
	require.Len(t, pending, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{pending[0].ID, pending[1].ID, pending[2].ID})
}

func TestPending_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	q := New(nil, logging.NewNopLogger(), 0)
	q.AddMessage(ctx, "c1", "u1", "a", "text/plain")

	p := q.PendingMessages()
	p[0].Attempts = MaxAttempts

	assert.Len(t, q.PendingMessages(), 1)
}

func TestMarkAttempted_AbandonsAtMaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, newStore(t))

	m := q.AddMessage(ctx, "c1", "u1", "a", "text/plain")
	p := q.AddParticipant(ctx, "c1", "u3")

	for i := 0; i < MaxAttempts; i++ {
		require.Len(t, q.PendingMessages(), 1, "attempt %d", i)
		require.NoError(t, q.MarkMessageAttempted(ctx, m.ID))
	}
	assert.Empty(t, q.PendingMessages())
	require.NoError(t, q.MarkParticipantAttempted(ctx, p.ID))

	assert.Equal(t, Stats{
		PendingMessages:       0,
		PendingParticipants:   1,
		AbandonedMessages:     1,
		AbandonedParticipants: 0,
		TotalMessages:         1,
		TotalParticipants:     1,
	}, q.Stats())
}

func TestMarkAttempted_UnknownID(t *testing.T) {
	q := New(nil, logging.NewNopLogger(), 0)
	require.ErrorIs(t, q.MarkMessageAttempted(context.Background(), "nope"), common.ErrorNotFound)
	require.ErrorIs(t, q.MarkParticipantAttempted(context.Background(), "nope"), common.ErrorNotFound)
}

func TestRemove_DropsFromMemoryAndStore(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	q := newQueue(t, db)

	m := q.AddMessage(ctx, "c1", "u1", "a", "text/plain")
	p := q.AddParticipant(ctx, "c1", "u3")

	q.RemoveMessage(ctx, m.ID)
	q.RemoveParticipant(ctx, p.ID)

	assert.Equal(t, Stats{}, q.Stats())
	items, err := queue.NewSQLiteRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLoad_RestoresFromStore(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)

	first := newQueue(t, db)
	m := first.AddMessage(ctx, "c1", "u1", "hello", "text/plain")
	first.AddParticipant(ctx, "c1", "u3")
	require.NoError(t, first.MarkMessageAttempted(ctx, m.ID))

	second := newQueue(t, db)
	require.NoError(t, second.Load(ctx))

	msgs := second.PendingMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, m.ID, msgs[0].ID)
	assert.Equal(t, 1, msgs[0].Attempts)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Len(t, second.PendingParticipants(), 1)
}

func TestLoad_StoreError(t *testing.T) {
	q := New(failingRepo{}, logging.NewNopLogger(), 0)
	require.ErrorIs(t, q.Load(context.Background()), errDisk)
}

func TestMarkAttempted_ConflictReloadsStoredRow(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)

	a := newQueue(t, db)
	m := a.AddMessage(ctx, "c1", "u1", "hello", "text/plain")

	b := newQueue(t, db)
	require.NoError(t, b.Load(ctx))

	// a writes first: attempts 1, version 2
	require.NoError(t, a.MarkMessageAttempted(ctx, m.ID))
	require.NoError(t, a.MarkMessageAttempted(ctx, m.ID))

	// b still holds version 1, so its write conflicts and b adopts the stored row
	require.NoError(t, b.MarkMessageAttempted(ctx, m.ID))
	got := b.PendingMessages()
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Attempts)
	assert.EqualValues(t, 3, got[0].Version)

	stored, err := queue.NewSQLiteRepository(db).Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)

	// after the reload b's writes succeed again
	require.NoError(t, b.MarkMessageAttempted(ctx, m.ID))
	stored, err = queue.NewSQLiteRepository(db).Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Attempts)
}

func TestMarkAttempted_RemovedElsewhereDropsItem(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)

	a := newQueue(t, db)
	m := a.AddMessage(ctx, "c1", "u1", "hello", "text/plain")

	b := newQueue(t, db)
	require.NoError(t, b.Load(ctx))

	a.RemoveMessage(ctx, m.ID)

	require.NoError(t, b.MarkMessageAttempted(ctx, m.ID))
	assert.Empty(t, b.PendingMessages())
	assert.Equal(t, 0, b.Stats().TotalMessages)
}

func TestPurgeAbandoned(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	q := newQueue(t, db)

	dead := q.AddMessage(ctx, "c1", "u1", "dead", "text/plain")
	alive := q.AddMessage(ctx, "c1", "u1", "alive", "text/plain")
	deadP := q.AddParticipant(ctx, "c1", "u3")
	for i := 0; i < MaxAttempts; i++ {
		require.NoError(t, q.MarkMessageAttempted(ctx, dead.ID))
		require.NoError(t, q.MarkParticipantAttempted(ctx, deadP.ID))
	}

	assert.Equal(t, 2, q.PurgeAbandoned(ctx))
	assert.Equal(t, Stats{PendingMessages: 1, TotalMessages: 1}, q.Stats())

	items, err := queue.NewSQLiteRepository(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, alive.ID, items[0].ID)
}

func TestStartRetry_CallsWhilePending(t *testing.T) {
	ctx := context.Background()
	q := New(nil, logging.NewNopLogger(), 5*time.Millisecond)
	m := q.AddMessage(ctx, "c1", "u1", "a", "text/plain")

	var calls atomic.Int32
	q.StartRetry(ctx, func(ctx context.Context) error {
		calls.Add(1)
		q.RemoveMessage(ctx, m.ID)
		return nil
	})
	defer q.StopRetry()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// nothing pending any more, so no further calls
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStartRetry_ErrorIsLoggedAndRetried(t *testing.T) {
	ctx := context.Background()
	q := New(nil, logging.NewNopLogger(), 5*time.Millisecond)
	q.AddMessage(ctx, "c1", "u1", "a", "text/plain")

	var calls atomic.Int32
	q.StartRetry(ctx, func(context.Context) error {
		calls.Add(1)
		return errors.New("still offline")
	})
	defer q.StopRetry()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestStartRetry_RestartReplacesTimer(t *testing.T) {
	ctx := context.Background()
	q := New(nil, logging.NewNopLogger(), 5*time.Millisecond)
	q.AddMessage(ctx, "c1", "u1", "a", "text/plain")

	var first, second atomic.Int32
	q.StartRetry(ctx, func(context.Context) error { first.Add(1); return nil })
	require.Eventually(t, func() bool { return first.Load() > 0 }, time.Second, 5*time.Millisecond)

	q.StartRetry(ctx, func(context.Context) error { second.Add(1); return nil })
	defer q.StopRetry()
	stopped := first.Load()

	require.Eventually(t, func() bool { return second.Load() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, stopped, first.Load())
}

func TestStopRetry_Idempotent(t *testing.T) {
	q := New(nil, logging.NewNopLogger(), time.Millisecond)
	q.StopRetry()
	q.StartRetry(context.Background(), func(context.Context) error { return nil })
	q.StopRetry()
	q.StopRetry()
}

func TestStartRetry_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New(nil, logging.NewNopLogger(), time.Millisecond)
	q.StartRetry(ctx, func(context.Context) error { return nil })
	cancel()
	q.StopRetry()
}

func TestNew_DefaultInterval(t *testing.T) {
	q := New(nil, logging.NewNopLogger(), 0)
	assert.Equal(t, DefaultRetryInterval, q.interval)
}

// lockedOnceRepo fails the first Insert the way a store held by another
// process does, then behaves like the wrapped repository.
type lockedOnceRepo struct {
	queue.Repository
	failed bool
}

func (r *lockedOnceRepo) Insert(ctx context.Context, item *models.QueuedItem) error {
	if !r.failed {
		r.failed = true
		return errors.New("database is locked")
	}
	return r.Repository.Insert(ctx, item)
}

func TestMarkAttempted_PersistsItemWhoseInsertFailed(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	store := queue.NewSQLiteRepository(db)
	q := New(&lockedOnceRepo{Repository: store}, logging.NewNopLogger(), time.Minute)

	m := q.AddMessage(ctx, "c1", "u1", "hola", "text/plain")
	_, err := store.Get(ctx, m.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, q.MarkMessageAttempted(ctx, m.ID))

	pending := q.PendingMessages()
	require.Len(t, pending, 1)
	assert.Equal(t, m.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, 1, q.Stats().TotalMessages)

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)

	// once persisted, later attempts are ordinary versioned updates
	require.NoError(t, q.MarkMessageAttempted(ctx, m.ID))
	stored, err = store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
}

func TestRemove_ItemWhoseInsertFailed(t *testing.T) {
	ctx := context.Background()
	q := New(&lockedOnceRepo{Repository: queue.NewSQLiteRepository(newStore(t))}, logging.NewNopLogger(), time.Minute)

	m := q.AddMessage(ctx, "c1", "u1", "hola", "text/plain")
	q.RemoveMessage(ctx, m.ID)

	assert.Empty(t, q.PendingMessages())
	assert.Empty(t, q.unsaved)
}

func TestAddMessageWithID_KeepsCallerIDAndDedups(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	q := newQueue(t, db)

	first := q.AddMessageWithID(ctx, "6f1c2a9e-0000-4000-8000-000000000001", "c1", "u1", "hola", "text/plain")
	again := q.AddMessageWithID(ctx, "6f1c2a9e-0000-4000-8000-000000000001", "c1", "u1", "hola", "text/plain")

	assert.Equal(t, "6f1c2a9e-0000-4000-8000-000000000001", first.ID)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, q.PendingMessages(), 1)

	stored, err := queue.NewSQLiteRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

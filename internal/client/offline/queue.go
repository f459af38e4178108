// Package offline buffers message sends and participant adds that failed
// against the backend, and retries them on a fixed timer.
//
// An item moves queued -> attempted -> removed on success, or back to queued
// with one more attempt on failure. Items that reach MaxAttempts are
// abandoned: they are no longer returned as pending and stay in the queue
// until PurgeAbandoned drops them.
//
// The in-memory lists are the source of truth for the running process. Every
// change is also written to a Repository, one row at a time, using versioned
// writes. When another process sharing the store changed a row first, the
// stored row wins and replaces the in-memory copy.
package offline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/client/repositories/queue"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/logging"
	"github.com/google/uuid"
)

const (
	MaxAttempts          = 5
	DefaultRetryInterval = 30 * time.Second
)

// Stats summarises the queue. Pending and abandoned counts add up to the
// totals.
type Stats struct {
	PendingMessages       int
	PendingParticipants   int
	AbandonedMessages     int
	AbandonedParticipants int
	TotalMessages         int
	TotalParticipants     int
}

// RetryFunc is called on every retry tick while work is pending.
type RetryFunc func(ctx context.Context) error

type Queue struct {
	repo     queue.Repository
	logger   logging.Logger
	interval time.Duration
	now      func() time.Time

	mu           sync.Mutex
	messages     []*models.QueuedItem
	participants []*models.QueuedItem
	// unsaved holds ids whose first Insert failed; they live in memory only
	// until a later write persists them.
	unsaved map[string]struct{}

	retryMu     sync.Mutex
	retryCancel context.CancelFunc
	retryDone   chan struct{}
}

// New creates a queue persisted to repo. A nil repo keeps the queue in
// memory only. A non-positive interval means DefaultRetryInterval.
func New(repo queue.Repository, l logging.Logger, interval time.Duration) *Queue {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &Queue{
		repo:     repo,
		logger:   l.With("component", "offline_queue"),
		interval: interval,
		now:      time.Now,
		unsaved:  make(map[string]struct{}),
	}
}

// Load replaces the in-memory lists with the persisted items.
func (q *Queue) Load(ctx context.Context) error {
	if q.repo == nil {
		return nil
	}
	items, err := q.repo.List(ctx)
	if err != nil {
		return err
	}

	var msgs, parts []*models.QueuedItem
	for _, it := range items {
		switch it.Kind {
		case models.QueueKindMessage:
			msgs = append(msgs, it)
		case models.QueueKindParticipant:
			parts = append(parts, it)
		default:
			q.logger.Warn(ctx, "skipping queued item of unknown kind", "id", it.ID, "kind", it.Kind)
		}
	}

	q.mu.Lock()
	q.messages, q.participants = msgs, parts
	q.mu.Unlock()
	return nil
}

// AddMessage queues a message send. It never fails: when the item cannot be
// persisted it is kept in memory and the error is logged.
func (q *Queue) AddMessage(ctx context.Context, conversationID, senderID, text, mimeType string) *models.QueuedItem {
	return q.AddMessageWithID(ctx, uuid.NewString(), conversationID, senderID, text, mimeType)
}

// AddMessageWithID queues a message send under the id already used for the
// failed attempt, so the server can recognise a retry of a send it stored.
// Queueing an id twice returns the existing item.
func (q *Queue) AddMessageWithID(ctx context.Context, id, conversationID, senderID, text, mimeType string) *models.QueuedItem {
	return q.add(ctx, &models.QueuedItem{
		ID:             id,
		Kind:           models.QueueKindMessage,
		ConversationID: conversationID,
		UserID:         senderID,
		Text:           text,
		MimeType:       mimeType,
	})
}

// AddParticipant queues a participant add with the same guarantees as
// AddMessage.
func (q *Queue) AddParticipant(ctx context.Context, conversationID, userID string) *models.QueuedItem {
	return q.add(ctx, &models.QueuedItem{
		ID:             uuid.NewString(),
		Kind:           models.QueueKindParticipant,
		ConversationID: conversationID,
		UserID:         userID,
	})
}

func (q *Queue) add(ctx context.Context, item *models.QueuedItem) *models.QueuedItem {
	item.Version = 1
	item.CreatedAt = q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	list := &q.participants
	if item.Kind == models.QueueKindMessage {
		list = &q.messages
	}
	if idx := indexOf(*list, item.ID); idx >= 0 {
		return (*list)[idx].Clone()
	}
	*list = append(*list, item)

	if q.repo != nil {
		if err := q.repo.Insert(ctx, item.Clone()); err != nil {
			q.unsaved[item.ID] = struct{}{}
			q.logger.Error(ctx, "failed to persist queued item", "id", item.ID, "kind", item.Kind, "error", err)
		}
	}
	q.logger.Info(ctx, "queued for retry", "id", item.ID, "kind", item.Kind, "conversation_id", item.ConversationID)
	return item.Clone()
}

// PendingMessages returns copies of the messages with attempts left, in
// insertion order.
func (q *Queue) PendingMessages() []*models.QueuedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return pending(q.messages)
}

// PendingParticipants returns copies of the participant adds with attempts
// left, in insertion order.
func (q *Queue) PendingParticipants() []*models.QueuedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return pending(q.participants)
}

func pending(items []*models.QueuedItem) []*models.QueuedItem {
	out := make([]*models.QueuedItem, 0, len(items))
	for _, it := range items {
		if it.Attempts < MaxAttempts {
			out = append(out, it.Clone())
		}
	}
	return out
}

func (q *Queue) MarkMessageAttempted(ctx context.Context, id string) error {
	return q.markAttempted(ctx, &q.messages, id)
}

func (q *Queue) MarkParticipantAttempted(ctx context.Context, id string) error {
	return q.markAttempted(ctx, &q.participants, id)
}

// markAttempted bumps the attempt counter of one item. It returns
// common.ErrorNotFound when the id is not queued.
func (q *Queue) markAttempted(ctx context.Context, list *[]*models.QueuedItem, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := indexOf(*list, id)
	if idx < 0 {
		return common.ErrorNotFound
	}
	item := (*list)[idx]

	if q.repo == nil {
		item.Attempts++
		return nil
	}

	next := item.Clone()
	next.Attempts++
	if _, ok := q.unsaved[id]; ok {
		q.persistUnsaved(ctx, list, idx, next)
		return nil
	}

	err := q.repo.Update(ctx, next)
	switch {
	case err == nil:
		(*list)[idx] = next
	case errors.Is(err, common.ErrVersionConflict):
		q.reload(ctx, list, idx)
	case errors.Is(err, common.ErrorNotFound):
		q.logger.Info(ctx, "queued item removed elsewhere", "id", id)
		*list = append((*list)[:idx], (*list)[idx+1:]...)
	default:
		q.logger.Error(ctx, "failed to persist attempt", "id", id, "error", err)
		item.Attempts++
	}
	return nil
}

// persistUnsaved retries the Insert of an item that never reached the store.
// The item stays in memory whether or not the Insert succeeds. Must be called
// with q.mu held.
func (q *Queue) persistUnsaved(ctx context.Context, list *[]*models.QueuedItem, idx int, next *models.QueuedItem) {
	(*list)[idx] = next
	if err := q.repo.Insert(ctx, next.Clone()); err != nil {
		q.logger.Error(ctx, "failed to persist queued item", "id", next.ID, "kind", next.Kind, "error", err)
		return
	}
	delete(q.unsaved, next.ID)
}

// reload replaces the item at idx with the stored row. Must be called with
// q.mu held.
func (q *Queue) reload(ctx context.Context, list *[]*models.QueuedItem, idx int) {
	id := (*list)[idx].ID
	stored, err := q.repo.Get(ctx, id)
	switch {
	case err == nil:
		q.logger.Info(ctx, "queued item changed elsewhere, reloaded", "id", id, "attempts", stored.Attempts)
		(*list)[idx] = stored
	case errors.Is(err, common.ErrorNotFound):
		*list = append((*list)[:idx], (*list)[idx+1:]...)
	default:
		q.logger.Error(ctx, "failed to reload queued item", "id", id, "error", err)
	}
}

func (q *Queue) RemoveMessage(ctx context.Context, id string) {
	q.remove(ctx, &q.messages, id)
}

func (q *Queue) RemoveParticipant(ctx context.Context, id string) {
	q.remove(ctx, &q.participants, id)
}

func (q *Queue) remove(ctx context.Context, list *[]*models.QueuedItem, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if idx := indexOf(*list, id); idx >= 0 {
		*list = append((*list)[:idx], (*list)[idx+1:]...)
	}
	if _, ok := q.unsaved[id]; ok {
		delete(q.unsaved, id)
		return
	}
	if q.repo != nil {
		if err := q.repo.Delete(ctx, id); err != nil {
			q.logger.Error(ctx, "failed to delete queued item", "id", id, "error", err)
		}
	}
}

// PurgeAbandoned drops every item that ran out of attempts and returns how
// many were dropped.
func (q *Queue) PurgeAbandoned(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, list := range []*[]*models.QueuedItem{&q.messages, &q.participants} {
		kept := (*list)[:0]
		for _, it := range *list {
			if it.Attempts < MaxAttempts {
				kept = append(kept, it)
				continue
			}
			n++
			if _, ok := q.unsaved[it.ID]; ok {
				delete(q.unsaved, it.ID)
				continue
			}
			if q.repo != nil {
				if err := q.repo.Delete(ctx, it.ID); err != nil {
					q.logger.Error(ctx, "failed to delete abandoned item", "id", it.ID, "error", err)
				}
			}
		}
		*list = kept
	}
	return n
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{TotalMessages: len(q.messages), TotalParticipants: len(q.participants)}
	for _, it := range q.messages {
		if it.Attempts < MaxAttempts {
			s.PendingMessages++
		} else {
			s.AbandonedMessages++
		}
	}
	for _, it := range q.participants {
		if it.Attempts < MaxAttempts {
			s.PendingParticipants++
		} else {
			s.AbandonedParticipants++
		}
	}
	return s
}

func (q *Queue) hasPending() bool {
	s := q.Stats()
	return s.PendingMessages+s.PendingParticipants > 0
}

// StartRetry runs fn every retry interval while work is pending. Calling it
// again replaces the running timer. The loop ends when ctx is done or
// StopRetry is called.
func (q *Queue) StartRetry(ctx context.Context, fn RetryFunc) {
	q.retryMu.Lock()
	defer q.retryMu.Unlock()

	q.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	q.retryCancel, q.retryDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !q.hasPending() {
					continue
				}
				if err := fn(ctx); err != nil {
					q.logger.Warn(ctx, "queue retry failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopRetry stops the retry timer and waits for a running callback to
// return.
func (q *Queue) StopRetry() {
	q.retryMu.Lock()
	defer q.retryMu.Unlock()
	q.stopLocked()
}

func (q *Queue) stopLocked() {
	if q.retryCancel == nil {
		return
	}
	q.retryCancel()
	<-q.retryDone
	q.retryCancel, q.retryDone = nil, nil
}

func indexOf(items []*models.QueuedItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

package realtime

import (
	"context"
	"sync"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/server/models"
)

type subscriber struct {
	ch chan *models.Event
}

type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
	logger logging.Logger
}

func NewMemoryBroker(l logging.Logger) *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: l.With("module", "realtime_memory"),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, ev *models.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[ev.ConversationID] {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn(ctx, "dropping event for slow subscriber", "conversation_id", ev.ConversationID, "kind", ev.Kind)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, conversationID string) (<-chan *models.Event, func(), error) {
	s := &subscriber{ch: make(chan *models.Event, SubscriberBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrBrokerClosed
	}
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[*subscriber]struct{})
	}
	b.subs[conversationID][s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[conversationID]; ok {
				if _, ok := set[s]; ok {
					delete(set, s)
					close(s.ch)
				}
				if len(set) == 0 {
					delete(b.subs, conversationID)
				}
			}
		})
	}
	return s.ch, cancel, nil
}

// Close drops all subscriptions and closes their channels.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, set := range b.subs {
		for s := range set {
			close(s.ch)
		}
		delete(b.subs, id)
	}
	b.closed = true
	return nil
}

// subscriberCount is used by tests.
func (b *MemoryBroker) subscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// RedisBroker relays events through Redis pub/sub so that subscribers on any
// server instance see events published on any other.
type RedisBroker struct {
	rdb    *redis.Client
	logger logging.Logger
}

func NewRedisBroker(ctx context.Context, addr string, l logging.Logger) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBroker{rdb: rdb, logger: l.With("module", "realtime_redis")}, nil
}

func encodeEvent(ev *models.Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(payload string) (*models.Event, error) {
	ev := &models.Event{}
	if err := json.Unmarshal([]byte(payload), ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (b *RedisBroker) Publish(ctx context.Context, ev *models.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.rdb.Publish(ctx, ChannelName(ev.ConversationID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, conversationID string) (<-chan *models.Event, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, ChannelName(conversationID))

	// wait for the subscription to be confirmed so no event published right
	// after Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan *models.Event, SubscriberBuffer)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)

		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeEvent(msg.Payload)
				if err != nil {
					b.logger.Warn(ctx, "bad event payload", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				default:
					b.logger.Warn(ctx, "dropping event for slow subscriber", "conversation_id", conversationID, "kind", ev.Kind)
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
			wg.Wait()
		})
	}
	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}

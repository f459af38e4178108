// Package realtime fans out conversation events (new messages, typing,
// receipts) to live subscribers. Two brokers are provided: an in-process one
// for single-instance deployments and tests, and a Redis pub/sub one for
// running several server instances.
package realtime

import (
	"context"

	"github.com/agrolink/agrolink/internal/server/models"
)

// SubscriberBuffer bounds each subscriber's queue. Events for a subscriber
// whose queue is full are dropped instead of blocking publishers.
const SubscriberBuffer = 64

// Broker publishes events to everyone subscribed to the event's conversation.
type Broker interface {
	Publish(ctx context.Context, ev *models.Event) error
	// Subscribe returns a channel of events for conversationID and a cancel
	// func that releases the subscription and closes the channel.
	Subscribe(ctx context.Context, conversationID string) (<-chan *models.Event, func(), error)
	Close() error
}

// ChannelName is the pub/sub channel used for a conversation.
func ChannelName(conversationID string) string {
	return "agrolink:conversation:" + conversationID
}

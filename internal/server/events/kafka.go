package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/server/models"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink writes MessageCreated records keyed by conversation id, so all
// events of one conversation land on the same partition in order.
type KafkaSink struct {
	writer messageWriter
}

// batchTimeout bounds how long an event waits in the writer's batch.
const batchTimeout = 10 * time.Millisecond

// NewKafkaSink returns a sink whose writes are asynchronous: MessageCreated
// returns once the event is buffered, and delivery failures are logged by
// the writer's completion callback.
func NewKafkaSink(brokers []string, topic string, l logging.Logger) *KafkaSink {
	return &KafkaSink{writer: newWriter(brokers, topic, l)}
}

func newWriter(brokers []string, topic string, l logging.Logger) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           batchTimeout,
		Completion:             completion(l),
	}
}

func completion(l logging.Logger) func([]kafkago.Message, error) {
	return func(msgs []kafkago.Message, err error) {
		if err == nil {
			return
		}
		l.Error(context.Background(), "message events not delivered", "count", len(msgs), "error", err)
	}
}

func (s *KafkaSink) MessageCreated(ctx context.Context, m *models.Message) error {
	b, err := json.Marshal(NewMessageCreated(m))
	if err != nil {
		return fmt.Errorf("encode message event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(m.ConversationID),
		Value: b,
		Time:  m.CreatedAt,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

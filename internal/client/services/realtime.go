package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/rpc"
)

// Unsubscribe stops a subscription and waits for its goroutine to exit. It
// is safe to call more than once.
type Unsubscribe func()

// SubscribeMessages calls cb with every new message of the conversation,
// decrypted with the local key. Messages sent after it returns are
// delivered; earlier ones come from LoadMessages.
func (s *MessagingService) SubscribeMessages(ctx context.Context, conversationID string, cb func(*models.Message)) (Unsubscribe, error) {
	sess, err := s.currentSession()
	if err != nil {
		return nil, err
	}

	var key []byte
	return s.subscribe(ctx, conversationID, func(ctx context.Context, ev *rpc.Event) {
		if ev.Kind != rpc.EventMessage || ev.Message == nil {
			return
		}
		if key == nil {
			k, err := s.conversationKey(ctx, sess, conversationID)
			if err != nil && !errors.Is(err, common.ErrNoConversationKey) {
				s.logger.Warn(ctx, "conversation key unavailable", "conversation_id", conversationID, "error", err)
			}
			key = k
		}
		msg := s.decryptMessage(key, ev.Message)
		if msg.SenderID == sess.UserID {
			msg.Status = models.StatusSent
		}
		cb(msg)
	})
}

// SubscribeTyping calls cb whenever another participant reports typing.
func (s *MessagingService) SubscribeTyping(ctx context.Context, conversationID string, cb func(models.TypingEvent)) (Unsubscribe, error) {
	sess, err := s.currentSession()
	if err != nil {
		return nil, err
	}
	return s.subscribe(ctx, conversationID, func(_ context.Context, ev *rpc.Event) {
		if ev.Kind != rpc.EventTyping || ev.UserID == sess.UserID {
			return
		}
		cb(models.TypingEvent{ConversationID: ev.ConversationID, UserID: ev.UserID, At: ev.At})
	})
}

// SubscribeReceipts calls cb with delivery and read receipts as they are
// recorded.
func (s *MessagingService) SubscribeReceipts(ctx context.Context, conversationID string, cb func(*models.Receipt)) (Unsubscribe, error) {
	if _, err := s.currentSession(); err != nil {
		return nil, err
	}
	return s.subscribe(ctx, conversationID, func(_ context.Context, ev *rpc.Event) {
		if ev.Kind != rpc.EventReceipt || ev.Receipt == nil {
			return
		}
		cb(receiptFromRPC(ev.Receipt))
	})
}

// subscribe opens one server stream and feeds its events to handle from a
// single goroutine, so handle needs no locking of its own.
func (s *MessagingService) subscribe(ctx context.Context, conversationID string, handle func(context.Context, *rpc.Event)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.client.Subscribe(ctx, conversationID)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, io.EOF) {
					s.logger.Warn(ctx, "subscription ended", "conversation_id", conversationID, "error", err)
				}
				return
			}
			handle(ctx, ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

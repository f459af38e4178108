package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/server/events"
	"github.com/agrolink/agrolink/internal/server/metrics"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/agrolink/agrolink/internal/server/realtime"
	"github.com/agrolink/agrolink/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// MessagingService owns conversations, messages and receipts, and fans
// changes out to realtime subscribers and the event sink.
type MessagingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	broker      realtime.Broker
	sink        events.Sink
	metrics     *metrics.Metrics
	logger      logging.Logger
	now         func() time.Time
}

func NewMessagingService(db *sql.DB, m repomanager.RepositoryManager, broker realtime.Broker,
	sink events.Sink, mt *metrics.Metrics, l logging.Logger) *MessagingService {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &MessagingService{
		db:          db,
		repomanager: m,
		broker:      broker,
		sink:        sink,
		metrics:     mt,
		logger:      l,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// requireParticipant loads the caller's participant row or returns
// common.ErrNotParticipant. A malformed conversation id is a validation error
// rather than a failed uuid cast in the database.
func (s *MessagingService) requireParticipant(ctx context.Context, conversationID, userID string) (*models.Participant, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, common.ErrorValidation
	}
	p, err := s.repomanager.Participants(s.db).Get(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotParticipant) {
			return nil, common.ErrNotParticipant
		}
		return nil, fmt.Errorf("error checking membership: %w", err)
	}
	return p, nil
}

// publish never fails the caller: the state change is already committed and
// clients recover missed events by listing.
func (s *MessagingService) publish(ctx context.Context, ev *models.Event) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, ev); err != nil {
		s.logger.Warn(ctx, "realtime publish failed",
			"kind", string(ev.Kind), "conversation_id", ev.ConversationID, "error", err)
	}
}

// Subscribe opens a realtime feed for a conversation the user belongs to.
func (s *MessagingService) Subscribe(ctx context.Context, userID, conversationID string) (<-chan *models.Event, func(), error) {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, nil, err
	}
	if s.broker == nil {
		return nil, nil, common.ErrorInternal
	}
	ch, cancel, err := s.broker.Subscribe(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("error subscribing: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSubscriptions.Inc()
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			if s.metrics != nil {
				s.metrics.ActiveSubscriptions.Dec()
			}
		})
	}
	return ch, release, nil
}

// SendTyping publishes a typing event. Nothing is stored.
func (s *MessagingService) SendTyping(ctx context.Context, userID, conversationID string) error {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.publish(ctx, &models.Event{
		Kind:           models.EventTyping,
		ConversationID: conversationID,
		UserID:         userID,
		At:             s.now(),
	})
	return nil
}

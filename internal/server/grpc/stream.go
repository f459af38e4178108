package grpc

import (
	"github.com/agrolink/agrolink/internal/rpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Subscribe streams realtime events of one conversation until the client
// goes away or the broker closes the subscription. The first event sent is
// EventSubscribed so clients know nothing published afterwards is missed.
func (s *GRPCServer) Subscribe(req *rpc.SubscribeRequest, stream rpc.MessagingService_SubscribeServer) error {
	ctx := stream.Context()
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}

	events, cancel, err := s.messaging.Subscribe(ctx, userID, req.ConversationID)
	if err != nil {
		return s.toStatus(ctx, "Subscribe", err)
	}
	defer cancel()

	if err := stream.Send(&rpc.Event{Kind: rpc.EventSubscribed, ConversationID: req.ConversationID}); err != nil {
		return err
	}
	s.logger.Debug(ctx, "subscription opened", "conversation_id", req.ConversationID, "user_id", userID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return status.Error(codes.Unavailable, "subscription closed")
			}
			if err := stream.Send(eventToRPC(ev)); err != nil {
				return err
			}
		}
	}
}

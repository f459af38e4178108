package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DefaultRequestTimeout bounds unary calls whose context has no deadline.
const DefaultRequestTimeout = 10 * time.Second

type GRPCClient struct {
	endpointURL    string
	requestTimeout time.Duration
	conn           *grpc.ClientConn
	client         rpc.MessagingServiceClient

	mu          sync.RWMutex
	accessToken string
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *GRPCClient) setToken(t string) {
	s.mu.Lock()
	s.accessToken = t
	s.mu.Unlock()
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := ctx.Deadline(); !ok && s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	return invoker(withAccessToken(ctx, s.token()), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	return streamer(withAccessToken(ctx, s.token()), desc, cc, method, opts...)
}

// NewGRPCClient creates a client for the messaging service at endpointURL.
// The connection is established lazily on the first call. Extra dial options
// are appended after the defaults.
func NewGRPCClient(endpointURL string, requestTimeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, requestTimeout: requestTimeout}
	if err := c.initGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) initGRPCClient(extra ...grpc.DialOption) error {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(rpc.CallOptions()...),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	}
	conn, err := grpc.NewClient(s.endpointURL, append(opts, extra...)...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewMessagingServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &rpc.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, req *rpc.RegisterUserRequest) (string, error) {
	resp, err := s.client.RegisterUser(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.UserID, nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	resp, err := s.client.GetSalt(ctx, &rpc.GetSaltRequest{Username: userName})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Salt, nil
}

func (s *GRPCClient) Login(ctx context.Context, userName string, verifier []byte) (*rpc.LoginResponse, error) {
	resp, err := s.client.Login(ctx, &rpc.LoginRequest{Username: userName, VerifierCandidate: verifier})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.setToken(resp.AccessToken)
	return resp, nil
}

func (s *GRPCClient) GetPublicKeys(ctx context.Context, userIDs []string) (map[string][]byte, error) {
	resp, err := s.client.GetPublicKeys(ctx, &rpc.GetPublicKeysRequest{UserIDs: userIDs})
	if err != nil {
		return nil, s.mapError(err)
	}
	if resp.Keys == nil {
		return map[string][]byte{}, nil
	}
	return resp.Keys, nil
}

func (s *GRPCClient) EnsureConversation(ctx context.Context, otherUserID string, keys []*rpc.WrappedKey) (*rpc.EnsureConversationResponse, error) {
	resp, err := s.client.EnsureConversation(ctx, &rpc.EnsureConversationRequest{OtherUserID: otherUserID, Keys: keys})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) GetConversationKey(ctx context.Context, conversationID string) (*rpc.WrappedKey, error) {
	resp, err := s.client.GetConversationKey(ctx, &rpc.GetConversationKeyRequest{ConversationID: conversationID})
	if err != nil {
		return nil, s.mapError(err)
	}
	if resp.Key == nil {
		return nil, ErrNotFound
	}
	return resp.Key, nil
}

func (s *GRPCClient) AddParticipant(ctx context.Context, conversationID string, key *rpc.WrappedKey) error {
	_, err := s.client.AddParticipant(ctx, &rpc.AddParticipantRequest{ConversationID: conversationID, Key: key})
	return s.mapError(err)
}

func (s *GRPCClient) ListConversations(ctx context.Context) ([]*rpc.Conversation, error) {
	resp, err := s.client.ListConversations(ctx, &rpc.ListConversationsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Conversations, nil
}

func (s *GRPCClient) GetConversationsParticipants(ctx context.Context, conversationIDs []string) (map[string][]string, error) {
	resp, err := s.client.GetConversationsParticipants(ctx, &rpc.GetConversationsParticipantsRequest{ConversationIDs: conversationIDs})
	if err != nil {
		return nil, s.mapError(err)
	}
	if resp.Participants == nil {
		return map[string][]string{}, nil
	}
	return resp.Participants, nil
}

func (s *GRPCClient) GetUnreadCounts(ctx context.Context) (map[string]int64, error) {
	resp, err := s.client.GetUnreadCounts(ctx, &rpc.GetUnreadCountsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	if resp.Counts == nil {
		return map[string]int64{}, nil
	}
	return resp.Counts, nil
}

func (s *GRPCClient) ArchiveConversation(ctx context.Context, conversationID string) error {
	_, err := s.client.ArchiveConversation(ctx, &rpc.ArchiveConversationRequest{ConversationID: conversationID})
	return s.mapError(err)
}

func (s *GRPCClient) ListMessages(ctx context.Context, conversationID string) ([]*rpc.Message, error) {
	resp, err := s.client.ListMessages(ctx, &rpc.ListMessagesRequest{ConversationID: conversationID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Messages, nil
}

func (s *GRPCClient) SendMessage(ctx context.Context, m *rpc.Message) (*rpc.Message, error) {
	resp, err := s.client.SendMessage(ctx, &rpc.SendMessageRequest{Message: m})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Message, nil
}

func (s *GRPCClient) MarkDelivered(ctx context.Context, messageIDs []string) ([]*rpc.Receipt, error) {
	resp, err := s.client.MarkDelivered(ctx, &rpc.MarkReceiptsRequest{MessageIDs: messageIDs})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Receipts, nil
}

func (s *GRPCClient) MarkRead(ctx context.Context, messageIDs []string) ([]*rpc.Receipt, error) {
	resp, err := s.client.MarkRead(ctx, &rpc.MarkReceiptsRequest{MessageIDs: messageIDs})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Receipts, nil
}

func (s *GRPCClient) HideMessage(ctx context.Context, messageID string) error {
	_, err := s.client.HideMessage(ctx, &rpc.HideMessageRequest{MessageID: messageID})
	return s.mapError(err)
}

func (s *GRPCClient) SendTyping(ctx context.Context, conversationID string) error {
	_, err := s.client.SendTyping(ctx, &rpc.SendTypingRequest{ConversationID: conversationID})
	return s.mapError(err)
}

func (s *GRPCClient) RequestAttachmentUpload(ctx context.Context, req *rpc.RequestAttachmentUploadRequest) (*rpc.RequestAttachmentUploadResponse, error) {
	resp, err := s.client.RequestAttachmentUpload(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) GetAttachmentURL(ctx context.Context, conversationID, key string) (string, error) {
	resp, err := s.client.GetAttachmentURL(ctx, &rpc.GetAttachmentURLRequest{ConversationID: conversationID, Key: key})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.URL, nil
}

// Subscribe opens the realtime stream for a conversation and returns once
// the server has acknowledged it, so every event published after Subscribe
// returns is delivered. Events from before that are read with ListMessages.
// Cancel ctx to close the stream.
func (s *GRPCClient) Subscribe(ctx context.Context, conversationID string) (EventStream, error) {
	stream, err := s.client.Subscribe(ctx, &rpc.SubscribeRequest{ConversationID: conversationID})
	if err != nil {
		return nil, s.mapError(err)
	}
	ack, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: stream closed before subscription", ErrUnavailable)
		}
		return nil, s.mapError(err)
	}
	if ack.Kind != rpc.EventSubscribed {
		return nil, fmt.Errorf("unexpected first event %q", ack.Kind)
	}
	return &eventStream{stream: stream, mapError: s.mapError}, nil
}

type eventStream struct {
	stream   rpc.MessagingService_SubscribeClient
	mapError func(error) error
}

// Recv returns io.EOF when the server ends the stream.
func (e *eventStream) Recv() (*rpc.Event, error) {
	ev, err := e.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, e.mapError(err)
	}
	return ev, nil
}

// messageErrors are recognised in InvalidArgument and FailedPrecondition
// status messages.
var messageErrors = []error{
	common.ErrSelfConversation,
	common.ErrNoConversationKey,
	common.ErrAttachmentTooLarge,
	common.ErrStorageDisabled,
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return ErrNotFound
	case codes.PermissionDenied:
		return common.ErrNotParticipant
	case codes.AlreadyExists:
		return common.ErrorAlreadyExists
	case codes.Canceled:
		return context.Canceled
	case codes.InvalidArgument, codes.FailedPrecondition:
		for _, e := range messageErrors {
			if st.Message() == e.Error() {
				return e
			}
		}
		return fmt.Errorf("%w: %s", common.ErrorValidation, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

package client

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/rpc"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

/*************
 * Fake rpc client
 *************/

type fakeRPC struct {
	rpc.MessagingServiceClient

	lastGetSaltReq     *rpc.GetSaltRequest
	lastLoginReq       *rpc.LoginRequest
	lastRegisterReq    *rpc.RegisterUserRequest
	lastEnsureReq      *rpc.EnsureConversationRequest
	lastSendReq        *rpc.SendMessageRequest
	lastMarkReadReq    *rpc.MarkReceiptsRequest
	lastSubscribeReq   *rpc.SubscribeRequest
	lastAttachmentReq  *rpc.GetAttachmentURLRequest
	lastGetKeyReq      *rpc.GetConversationKeyRequest
	lastPublicKeysReq  *rpc.GetPublicKeysRequest
	lastParticipantReq *rpc.GetConversationsParticipantsRequest

	pingResp *rpc.PingResponse
	pingErr  error

	getSaltResp *rpc.GetSaltResponse
	getSaltErr  error

	loginResp *rpc.LoginResponse
	loginErr  error

	registerErr error

	ensureResp *rpc.EnsureConversationResponse
	ensureErr  error

	getKeyResp *rpc.GetConversationKeyResponse
	getKeyErr  error

	publicKeysResp *rpc.GetPublicKeysResponse

	participantsResp *rpc.GetConversationsParticipantsResponse

	sendErr error

	markReadResp *rpc.MarkReceiptsResponse

	attachmentResp *rpc.GetAttachmentURLResponse
	attachmentErr  error

	stream       *fakeStream
	subscribeErr error
}

func (f *fakeRPC) Ping(ctx context.Context, in *rpc.PingRequest, opts ...grpc.CallOption) (*rpc.PingResponse, error) {
	return f.pingResp, f.pingErr
}
func (f *fakeRPC) GetSalt(ctx context.Context, in *rpc.GetSaltRequest, opts ...grpc.CallOption) (*rpc.GetSaltResponse, error) {
	f.lastGetSaltReq = in
	return f.getSaltResp, f.getSaltErr
}
func (f *fakeRPC) Login(ctx context.Context, in *rpc.LoginRequest, opts ...grpc.CallOption) (*rpc.LoginResponse, error) {
	f.lastLoginReq = in
	return f.loginResp, f.loginErr
}
func (f *fakeRPC) RegisterUser(ctx context.Context, in *rpc.RegisterUserRequest, opts ...grpc.CallOption) (*rpc.RegisterUserResponse, error) {
	f.lastRegisterReq = in
	return &rpc.RegisterUserResponse{UserID: "u-new"}, f.registerErr
}
func (f *fakeRPC) GetPublicKeys(ctx context.Context, in *rpc.GetPublicKeysRequest, opts ...grpc.CallOption) (*rpc.GetPublicKeysResponse, error) {
	f.lastPublicKeysReq = in
	if f.publicKeysResp == nil {
		return &rpc.GetPublicKeysResponse{}, nil
	}
	return f.publicKeysResp, nil
}
func (f *fakeRPC) EnsureConversation(ctx context.Context, in *rpc.EnsureConversationRequest, opts ...grpc.CallOption) (*rpc.EnsureConversationResponse, error) {
	f.lastEnsureReq = in
	return f.ensureResp, f.ensureErr
}
func (f *fakeRPC) GetConversationKey(ctx context.Context, in *rpc.GetConversationKeyRequest, opts ...grpc.CallOption) (*rpc.GetConversationKeyResponse, error) {
	f.lastGetKeyReq = in
	return f.getKeyResp, f.getKeyErr
}
func (f *fakeRPC) GetConversationsParticipants(ctx context.Context, in *rpc.GetConversationsParticipantsRequest, opts ...grpc.CallOption) (*rpc.GetConversationsParticipantsResponse, error) {
	f.lastParticipantReq = in
	if f.participantsResp == nil {
		return &rpc.GetConversationsParticipantsResponse{}, nil
	}
	return f.participantsResp, nil
}
func (f *fakeRPC) SendMessage(ctx context.Context, in *rpc.SendMessageRequest, opts ...grpc.CallOption) (*rpc.SendMessageResponse, error) {
	f.lastSendReq = in
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &rpc.SendMessageResponse{Message: in.Message}, nil
}
func (f *fakeRPC) MarkRead(ctx context.Context, in *rpc.MarkReceiptsRequest, opts ...grpc.CallOption) (*rpc.MarkReceiptsResponse, error) {
	f.lastMarkReadReq = in
	return f.markReadResp, nil
}
func (f *fakeRPC) GetAttachmentURL(ctx context.Context, in *rpc.GetAttachmentURLRequest, opts ...grpc.CallOption) (*rpc.GetAttachmentURLResponse, error) {
	f.lastAttachmentReq = in
	return f.attachmentResp, f.attachmentErr
}
func (f *fakeRPC) Subscribe(ctx context.Context, in *rpc.SubscribeRequest, opts ...grpc.CallOption) (rpc.MessagingService_SubscribeClient, error) {
	f.lastSubscribeReq = in
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.stream, nil
}

type fakeStream struct {
	grpc.ClientStream
	events []*rpc.Event
	err    error
}

func (s *fakeStream) Recv() (*rpc.Event, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	return nil, s.err
}

/*************
 * interceptor tests
 *************/

func TestInterceptor_AttachesAccessToken(t *testing.T) {
	c := &GRPCClient{accessToken: "A1"}

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Equal(t, []string{"A1"}, toks)
		return nil
	}

	require.NoError(t, c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_ReplacesStaleToken(t *testing.T) {
	c := &GRPCClient{accessToken: "fresh"}
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "stale")

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Equal(t, []string{"fresh"}, md.Get(common.AccessTokenHeaderName))
		return nil
	}

	require.NoError(t, c.accessTokenInterceptor(ctx, "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_NoTokenBeforeLogin(t *testing.T) {
	c := &GRPCClient{}

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Empty(t, md.Get(common.AccessTokenHeaderName))
		return nil
	}

	require.NoError(t, c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_AppliesDefaultTimeout(t *testing.T) {
	c := &GRPCClient{requestTimeout: time.Minute}

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		dl, ok := ctx.Deadline()
		require.True(t, ok)
		require.WithinDuration(t, time.Now().Add(time.Minute), dl, 5*time.Second)
		return nil
	}

	require.NoError(t, c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_KeepsCallerDeadline(t *testing.T) {
	c := &GRPCClient{requestTimeout: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	want, _ := ctx.Deadline()

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		dl, ok := ctx.Deadline()
		require.True(t, ok)
		require.Equal(t, want, dl)
		return nil
	}

	require.NoError(t, c.accessTokenInterceptor(ctx, "/svc/Method", nil, nil, nil, invoker))
}

func TestStreamInterceptor_AttachesAccessToken(t *testing.T) {
	c := &GRPCClient{accessToken: "S1"}

	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Equal(t, []string{"S1"}, md.Get(common.AccessTokenHeaderName))
		return nil, nil
	}

	_, err := c.streamAccessTokenInterceptor(context.Background(), &grpc.StreamDesc{}, nil, "/svc/Subscribe", streamer)
	require.NoError(t, err)
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	require.Nil(t, c.mapError(nil))
	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.Unauthenticated, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.Unavailable, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.DeadlineExceeded, "x")))
	require.Equal(t, ErrNotFound, c.mapError(status.Error(codes.NotFound, "x")))
	require.ErrorIs(t, c.mapError(status.Error(codes.PermissionDenied, "x")), common.ErrNotParticipant)
	require.ErrorIs(t, c.mapError(status.Error(codes.AlreadyExists, "x")), common.ErrorAlreadyExists)
	require.ErrorIs(t, c.mapError(status.Error(codes.Canceled, "x")), context.Canceled)
	e := errors.New("plain")
	require.ErrorContains(t, c.mapError(e), "rpc error:")
	require.ErrorContains(t, c.mapError(status.Error(codes.Internal, "boom")), "rpc error:")
}

func TestMapError_RecognisesMessagingErrors(t *testing.T) {
	c := &GRPCClient{}

	require.ErrorIs(t, c.mapError(status.Error(codes.InvalidArgument, common.ErrAttachmentTooLarge.Error())), common.ErrAttachmentTooLarge)
	require.ErrorIs(t, c.mapError(status.Error(codes.InvalidArgument, common.ErrSelfConversation.Error())), common.ErrSelfConversation)
	require.ErrorIs(t, c.mapError(status.Error(codes.InvalidArgument, common.ErrNoConversationKey.Error())), common.ErrNoConversationKey)
	require.ErrorIs(t, c.mapError(status.Error(codes.FailedPrecondition, common.ErrStorageDisabled.Error())), common.ErrStorageDisabled)

	err := c.mapError(status.Error(codes.InvalidArgument, "bad id"))
	require.ErrorIs(t, err, common.ErrorValidation)
	require.ErrorContains(t, err, "bad id")
}

/*************
 * Ping / auth tests
 *************/

func TestPing_OK(t *testing.T) {
	f := &fakeRPC{pingResp: &rpc.PingResponse{Status: "OK"}}
	c := &GRPCClient{client: f}
	require.NoError(t, c.Ping(context.Background()))
}

func TestPing_NotOK_ReturnsUnavailable(t *testing.T) {
	f := &fakeRPC{pingResp: &rpc.PingResponse{Status: "NOT_OK"}}
	c := &GRPCClient{client: f}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestPing_MapsRPCError(t *testing.T) {
	f := &fakeRPC{pingErr: status.Error(codes.Unavailable, "down")}
	c := &GRPCClient{client: f}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestGetSalt_Success(t *testing.T) {
	f := &fakeRPC{getSaltResp: &rpc.GetSaltResponse{Salt: []byte{1, 2, 3}}}
	c := &GRPCClient{client: f}
	salt, err := c.GetSalt(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, salt)
	require.Equal(t, "u", f.lastGetSaltReq.Username)
}

func TestGetSalt_MapsError(t *testing.T) {
	f := &fakeRPC{getSaltErr: status.Error(codes.Unavailable, "x")}
	c := &GRPCClient{client: f}
	_, err := c.GetSalt(context.Background(), "u")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLogin_KeepsToken(t *testing.T) {
	f := &fakeRPC{loginResp: &rpc.LoginResponse{AccessToken: "A", UserID: "u1"}}
	c := &GRPCClient{client: f}
	resp, err := c.Login(context.Background(), "u", []byte{9})
	require.NoError(t, err)
	require.Equal(t, "u1", resp.UserID)
	require.Equal(t, "A", c.token())
	require.Equal(t, "u", f.lastLoginReq.Username)
	require.Equal(t, []byte{9}, f.lastLoginReq.VerifierCandidate)
}

func TestLogin_FailureKeepsOldToken(t *testing.T) {
	f := &fakeRPC{loginErr: status.Error(codes.Unauthenticated, "no")}
	c := &GRPCClient{client: f, accessToken: "old"}
	_, err := c.Login(context.Background(), "u", []byte{9})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, "old", c.token())
}

func TestRegister_ReturnsUserID(t *testing.T) {
	f := &fakeRPC{}
	c := &GRPCClient{client: f}
	id, err := c.Register(context.Background(), &rpc.RegisterUserRequest{Username: "u", Salt: []byte{1}, Verifier: []byte{2}})
	require.NoError(t, err)
	require.Equal(t, "u-new", id)
	require.Equal(t, "u", f.lastRegisterReq.Username)
}

func TestRegister_MapsError(t *testing.T) {
	f := &fakeRPC{registerErr: status.Error(codes.AlreadyExists, "dup")}
	c := &GRPCClient{client: f}
	_, err := c.Register(context.Background(), &rpc.RegisterUserRequest{Username: "u"})
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestGetPublicKeys_NilMapBecomesEmpty(t *testing.T) {
	f := &fakeRPC{}
	c := &GRPCClient{client: f}
	keys, err := c.GetPublicKeys(context.Background(), []string{"u2"})
	require.NoError(t, err)
	require.NotNil(t, keys)
	require.Empty(t, keys)
	require.Equal(t, []string{"u2"}, f.lastPublicKeysReq.UserIDs)
}

/*************
 * Messaging tests
 *************/

func TestEnsureConversation_PassesKeys(t *testing.T) {
	f := &fakeRPC{ensureResp: &rpc.EnsureConversationResponse{Conversation: &rpc.Conversation{ID: "c1"}, Created: true}}
	c := &GRPCClient{client: f}
	keys := []*rpc.WrappedKey{{UserID: "u1"}, {UserID: "u2"}}

	resp, err := c.EnsureConversation(context.Background(), "u2", keys)
	require.NoError(t, err)
	require.Equal(t, "c1", resp.Conversation.ID)
	require.True(t, resp.Created)
	require.Equal(t, "u2", f.lastEnsureReq.OtherUserID)
	require.Equal(t, keys, f.lastEnsureReq.Keys)
}

func TestEnsureConversation_MapsError(t *testing.T) {
	f := &fakeRPC{ensureErr: status.Error(codes.InvalidArgument, common.ErrSelfConversation.Error())}
	c := &GRPCClient{client: f}
	_, err := c.EnsureConversation(context.Background(), "u1", nil)
	require.ErrorIs(t, err, common.ErrSelfConversation)
}

func TestGetConversationKey_MissingKeyIsNotFound(t *testing.T) {
	f := &fakeRPC{getKeyResp: &rpc.GetConversationKeyResponse{}}
	c := &GRPCClient{client: f}
	_, err := c.GetConversationKey(context.Background(), "c1")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "c1", f.lastGetKeyReq.ConversationID)
}

func TestGetConversationsParticipants(t *testing.T) {
	f := &fakeRPC{participantsResp: &rpc.GetConversationsParticipantsResponse{Participants: map[string][]string{"c1": {"u2"}}}}
	c := &GRPCClient{client: f}
	got, err := c.GetConversationsParticipants(context.Background(), []string{"c1"})
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"c1": {"u2"}}, got)
	require.Equal(t, []string{"c1"}, f.lastParticipantReq.ConversationIDs)
}

func TestSendMessage_Success(t *testing.T) {
	f := &fakeRPC{}
	c := &GRPCClient{client: f}
	m := &rpc.Message{ID: "m1", ConversationID: "c1", Ciphertext: "Y3Q=", IV: "aXY="}
	got, err := c.SendMessage(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, m, got)
	require.Equal(t, m, f.lastSendReq.Message)
}

func TestSendMessage_UnavailableMaps(t *testing.T) {
	f := &fakeRPC{sendErr: status.Error(codes.Unavailable, "down")}
	c := &GRPCClient{client: f}
	_, err := c.SendMessage(context.Background(), &rpc.Message{ID: "m1"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMarkRead_ReturnsReceipts(t *testing.T) {
	f := &fakeRPC{markReadResp: &rpc.MarkReceiptsResponse{Receipts: []*rpc.Receipt{{MessageID: "m1", UserID: "u2"}}}}
	c := &GRPCClient{client: f}
	rs, err := c.MarkRead(context.Background(), []string{"m1"})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.Equal(t, []string{"m1"}, f.lastMarkReadReq.MessageIDs)
}

func TestGetAttachmentURL(t *testing.T) {
	f := &fakeRPC{attachmentResp: &rpc.GetAttachmentURLResponse{URL: "https://dl"}}
	c := &GRPCClient{client: f}
	url, err := c.GetAttachmentURL(context.Background(), "c1", "conversations/c1/x")
	require.NoError(t, err)
	require.Equal(t, "https://dl", url)
	require.Equal(t, "conversations/c1/x", f.lastAttachmentReq.Key)
}

func TestGetAttachmentURL_StorageDisabled(t *testing.T) {
	f := &fakeRPC{attachmentErr: status.Error(codes.FailedPrecondition, common.ErrStorageDisabled.Error())}
	c := &GRPCClient{client: f}
	_, err := c.GetAttachmentURL(context.Background(), "c1", "k")
	require.ErrorIs(t, err, common.ErrStorageDisabled)
}

/*************
 * Subscribe tests
 *************/

func TestSubscribe_RecvMapsErrors(t *testing.T) {
	f := &fakeRPC{stream: &fakeStream{
		events: []*rpc.Event{
			{Kind: rpc.EventSubscribed, ConversationID: "c1"},
			{Kind: rpc.EventTyping, ConversationID: "c1", UserID: "u2"},
		},
		err: status.Error(codes.Unavailable, "subscription closed"),
	}}
	c := &GRPCClient{client: f}

	s, err := c.Subscribe(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", f.lastSubscribeReq.ConversationID)

	ev, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, rpc.EventTyping, ev.Kind)

	_, err = s.Recv()
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSubscribe_EOFPassesThrough(t *testing.T) {
	f := &fakeRPC{stream: &fakeStream{events: []*rpc.Event{{Kind: rpc.EventSubscribed}}, err: io.EOF}}
	c := &GRPCClient{client: f}

	s, err := c.Subscribe(context.Background(), "c1")
	require.NoError(t, err)
	_, err = s.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_WaitsForAck(t *testing.T) {
	t.Run("rejected before ack", func(t *testing.T) {
		f := &fakeRPC{stream: &fakeStream{err: status.Error(codes.PermissionDenied, "not a participant")}}
		c := &GRPCClient{client: f}
		_, err := c.Subscribe(context.Background(), "c1")
		require.ErrorIs(t, err, common.ErrNotParticipant)
	})

	t.Run("closed before ack", func(t *testing.T) {
		f := &fakeRPC{stream: &fakeStream{err: io.EOF}}
		c := &GRPCClient{client: f}
		_, err := c.Subscribe(context.Background(), "c1")
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("event before ack", func(t *testing.T) {
		f := &fakeRPC{stream: &fakeStream{events: []*rpc.Event{{Kind: rpc.EventMessage}}}}
		c := &GRPCClient{client: f}
		_, err := c.Subscribe(context.Background(), "c1")
		require.ErrorContains(t, err, `unexpected first event "message"`)
	})
}

func TestSubscribe_OpenError(t *testing.T) {
	f := &fakeRPC{subscribeErr: status.Error(codes.PermissionDenied, "no")}
	c := &GRPCClient{client: f}
	_, err := c.Subscribe(context.Background(), "c1")
	require.ErrorIs(t, err, common.ErrNotParticipant)
}

func TestNewGRPCClient_LazyConnect(t *testing.T) {
	c, err := NewGRPCClient("127.0.0.1:1", time.Second)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

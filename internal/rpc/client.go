package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// MessagingServiceClient is the client API of the messaging service.
type MessagingServiceClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error)
	GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	GetPublicKeys(ctx context.Context, in *GetPublicKeysRequest, opts ...grpc.CallOption) (*GetPublicKeysResponse, error)
	EnsureConversation(ctx context.Context, in *EnsureConversationRequest, opts ...grpc.CallOption) (*EnsureConversationResponse, error)
	GetConversationKey(ctx context.Context, in *GetConversationKeyRequest, opts ...grpc.CallOption) (*GetConversationKeyResponse, error)
	AddParticipant(ctx context.Context, in *AddParticipantRequest, opts ...grpc.CallOption) (*Empty, error)
	ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error)
	GetConversationsParticipants(ctx context.Context, in *GetConversationsParticipantsRequest, opts ...grpc.CallOption) (*GetConversationsParticipantsResponse, error)
	GetUnreadCounts(ctx context.Context, in *GetUnreadCountsRequest, opts ...grpc.CallOption) (*GetUnreadCountsResponse, error)
	ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error)
	SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error)
	MarkDelivered(ctx context.Context, in *MarkReceiptsRequest, opts ...grpc.CallOption) (*MarkReceiptsResponse, error)
	MarkRead(ctx context.Context, in *MarkReceiptsRequest, opts ...grpc.CallOption) (*MarkReceiptsResponse, error)
	HideMessage(ctx context.Context, in *HideMessageRequest, opts ...grpc.CallOption) (*Empty, error)
	ArchiveConversation(ctx context.Context, in *ArchiveConversationRequest, opts ...grpc.CallOption) (*Empty, error)
	SendTyping(ctx context.Context, in *SendTypingRequest, opts ...grpc.CallOption) (*Empty, error)
	RequestAttachmentUpload(ctx context.Context, in *RequestAttachmentUploadRequest, opts ...grpc.CallOption) (*RequestAttachmentUploadResponse, error)
	GetAttachmentURL(ctx context.Context, in *GetAttachmentURLRequest, opts ...grpc.CallOption) (*GetAttachmentURLResponse, error)
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (MessagingService_SubscribeClient, error)
}

// MessagingService_SubscribeClient is the client side of the event stream.
type MessagingService_SubscribeClient interface {
	Recv() (*Event, error)
	grpc.ClientStream
}

type messagingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMessagingServiceClient(cc grpc.ClientConnInterface) MessagingServiceClient {
	return &messagingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messagingServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, "Ping", in, opts)
}

func (c *messagingServiceClient) RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error) {
	return invoke[RegisterUserResponse](ctx, c.cc, "RegisterUser", in, opts)
}

func (c *messagingServiceClient) GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error) {
	return invoke[GetSaltResponse](ctx, c.cc, "GetSalt", in, opts)
}

func (c *messagingServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, "Login", in, opts)
}

func (c *messagingServiceClient) GetPublicKeys(ctx context.Context, in *GetPublicKeysRequest, opts ...grpc.CallOption) (*GetPublicKeysResponse, error) {
	return invoke[GetPublicKeysResponse](ctx, c.cc, "GetPublicKeys", in, opts)
}

func (c *messagingServiceClient) EnsureConversation(ctx context.Context, in *EnsureConversationRequest, opts ...grpc.CallOption) (*EnsureConversationResponse, error) {
	return invoke[EnsureConversationResponse](ctx, c.cc, "EnsureConversation", in, opts)
}

func (c *messagingServiceClient) GetConversationKey(ctx context.Context, in *GetConversationKeyRequest, opts ...grpc.CallOption) (*GetConversationKeyResponse, error) {
	return invoke[GetConversationKeyResponse](ctx, c.cc, "GetConversationKey", in, opts)
}

func (c *messagingServiceClient) AddParticipant(ctx context.Context, in *AddParticipantRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "AddParticipant", in, opts)
}

func (c *messagingServiceClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, "ListConversations", in, opts)
}

func (c *messagingServiceClient) GetConversationsParticipants(ctx context.Context, in *GetConversationsParticipantsRequest, opts ...grpc.CallOption) (*GetConversationsParticipantsResponse, error) {
	return invoke[GetConversationsParticipantsResponse](ctx, c.cc, "GetConversationsParticipants", in, opts)
}

func (c *messagingServiceClient) GetUnreadCounts(ctx context.Context, in *GetUnreadCountsRequest, opts ...grpc.CallOption) (*GetUnreadCountsResponse, error) {
	return invoke[GetUnreadCountsResponse](ctx, c.cc, "GetUnreadCounts", in, opts)
}

func (c *messagingServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, "ListMessages", in, opts)
}

func (c *messagingServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, "SendMessage", in, opts)
}

func (c *messagingServiceClient) MarkDelivered(ctx context.Context, in *MarkReceiptsRequest, opts ...grpc.CallOption) (*MarkReceiptsResponse, error) {
	return invoke[MarkReceiptsResponse](ctx, c.cc, "MarkDelivered", in, opts)
}

func (c *messagingServiceClient) MarkRead(ctx context.Context, in *MarkReceiptsRequest, opts ...grpc.CallOption) (*MarkReceiptsResponse, error) {
	return invoke[MarkReceiptsResponse](ctx, c.cc, "MarkRead", in, opts)
}

func (c *messagingServiceClient) HideMessage(ctx context.Context, in *HideMessageRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "HideMessage", in, opts)
}

func (c *messagingServiceClient) ArchiveConversation(ctx context.Context, in *ArchiveConversationRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "ArchiveConversation", in, opts)
}

func (c *messagingServiceClient) SendTyping(ctx context.Context, in *SendTypingRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "SendTyping", in, opts)
}

func (c *messagingServiceClient) RequestAttachmentUpload(ctx context.Context, in *RequestAttachmentUploadRequest, opts ...grpc.CallOption) (*RequestAttachmentUploadResponse, error) {
	return invoke[RequestAttachmentUploadResponse](ctx, c.cc, "RequestAttachmentUpload", in, opts)
}

func (c *messagingServiceClient) GetAttachmentURL(ctx context.Context, in *GetAttachmentURLRequest, opts ...grpc.CallOption) (*GetAttachmentURLResponse, error) {
	return invoke[GetAttachmentURLResponse](ctx, c.cc, "GetAttachmentURL", in, opts)
}

func (c *messagingServiceClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (MessagingService_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("Subscribe"), opts...)
	if err != nil {
		return nil, err
	}
	x := &subscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type subscribeClient struct {
	grpc.ClientStream
}

func (x *subscribeClient) Recv() (*Event, error) {
	m := new(Event)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

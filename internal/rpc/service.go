package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "agrolink.messaging.MessagingService"

// FullMethod returns the gRPC method path for a method of the service.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// MessagingServiceServer is implemented by the server transport.
type MessagingServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error)
	GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	GetPublicKeys(context.Context, *GetPublicKeysRequest) (*GetPublicKeysResponse, error)
	EnsureConversation(context.Context, *EnsureConversationRequest) (*EnsureConversationResponse, error)
	GetConversationKey(context.Context, *GetConversationKeyRequest) (*GetConversationKeyResponse, error)
	AddParticipant(context.Context, *AddParticipantRequest) (*Empty, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetConversationsParticipants(context.Context, *GetConversationsParticipantsRequest) (*GetConversationsParticipantsResponse, error)
	GetUnreadCounts(context.Context, *GetUnreadCountsRequest) (*GetUnreadCountsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	MarkDelivered(context.Context, *MarkReceiptsRequest) (*MarkReceiptsResponse, error)
	MarkRead(context.Context, *MarkReceiptsRequest) (*MarkReceiptsResponse, error)
	HideMessage(context.Context, *HideMessageRequest) (*Empty, error)
	ArchiveConversation(context.Context, *ArchiveConversationRequest) (*Empty, error)
	SendTyping(context.Context, *SendTypingRequest) (*Empty, error)
	RequestAttachmentUpload(context.Context, *RequestAttachmentUploadRequest) (*RequestAttachmentUploadResponse, error)
	GetAttachmentURL(context.Context, *GetAttachmentURLRequest) (*GetAttachmentURLResponse, error)
	Subscribe(*SubscribeRequest, MessagingService_SubscribeServer) error
}

// MessagingService_SubscribeServer is the server side of the event stream.
type MessagingService_SubscribeServer interface {
	Send(*Event) error
	grpc.ServerStream
}

type subscribeServer struct {
	grpc.ServerStream
}

func (s *subscribeServer) Send(e *Event) error {
	return s.ServerStream.SendMsg(e)
}

// UnimplementedMessagingServiceServer can be embedded to satisfy the
// interface partially, mostly in tests.
type UnimplementedMessagingServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedMessagingServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, unimplemented("Ping")
}
func (UnimplementedMessagingServiceServer) RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error) {
	return nil, unimplemented("RegisterUser")
}
func (UnimplementedMessagingServiceServer) GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error) {
	return nil, unimplemented("GetSalt")
}
func (UnimplementedMessagingServiceServer) Login(context.Context, *LoginRequest) (*LoginResponse, error) {
	return nil, unimplemented("Login")
}
func (UnimplementedMessagingServiceServer) GetPublicKeys(context.Context, *GetPublicKeysRequest) (*GetPublicKeysResponse, error) {
	return nil, unimplemented("GetPublicKeys")
}
func (UnimplementedMessagingServiceServer) EnsureConversation(context.Context, *EnsureConversationRequest) (*EnsureConversationResponse, error) {
	return nil, unimplemented("EnsureConversation")
}
func (UnimplementedMessagingServiceServer) GetConversationKey(context.Context, *GetConversationKeyRequest) (*GetConversationKeyResponse, error) {
	return nil, unimplemented("GetConversationKey")
}
func (UnimplementedMessagingServiceServer) AddParticipant(context.Context, *AddParticipantRequest) (*Empty, error) {
	return nil, unimplemented("AddParticipant")
}
func (UnimplementedMessagingServiceServer) ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error) {
	return nil, unimplemented("ListConversations")
}
func (UnimplementedMessagingServiceServer) GetConversationsParticipants(context.Context, *GetConversationsParticipantsRequest) (*GetConversationsParticipantsResponse, error) {
	return nil, unimplemented("GetConversationsParticipants")
}
func (UnimplementedMessagingServiceServer) GetUnreadCounts(context.Context, *GetUnreadCountsRequest) (*GetUnreadCountsResponse, error) {
	return nil, unimplemented("GetUnreadCounts")
}
func (UnimplementedMessagingServiceServer) ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error) {
	return nil, unimplemented("ListMessages")
}
func (UnimplementedMessagingServiceServer) SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error) {
	return nil, unimplemented("SendMessage")
}
func (UnimplementedMessagingServiceServer) MarkDelivered(context.Context, *MarkReceiptsRequest) (*MarkReceiptsResponse, error) {
	return nil, unimplemented("MarkDelivered")
}
func (UnimplementedMessagingServiceServer) MarkRead(context.Context, *MarkReceiptsRequest) (*MarkReceiptsResponse, error) {
	return nil, unimplemented("MarkRead")
}
func (UnimplementedMessagingServiceServer) HideMessage(context.Context, *HideMessageRequest) (*Empty, error) {
	return nil, unimplemented("HideMessage")
}
func (UnimplementedMessagingServiceServer) ArchiveConversation(context.Context, *ArchiveConversationRequest) (*Empty, error) {
	return nil, unimplemented("ArchiveConversation")
}
func (UnimplementedMessagingServiceServer) SendTyping(context.Context, *SendTypingRequest) (*Empty, error) {
	return nil, unimplemented("SendTyping")
}
func (UnimplementedMessagingServiceServer) RequestAttachmentUpload(context.Context, *RequestAttachmentUploadRequest) (*RequestAttachmentUploadResponse, error) {
	return nil, unimplemented("RequestAttachmentUpload")
}
func (UnimplementedMessagingServiceServer) GetAttachmentURL(context.Context, *GetAttachmentURLRequest) (*GetAttachmentURLResponse, error) {
	return nil, unimplemented("GetAttachmentURL")
}
func (UnimplementedMessagingServiceServer) Subscribe(*SubscribeRequest, MessagingService_SubscribeServer) error {
	return unimplemented("Subscribe")
}

// unaryHandler adapts a typed service method to grpc.MethodHandler.
func unaryHandler[Req any, Resp any](method string, call func(MessagingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(MessagingServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		})
	}
}

func method[Req any, Resp any](name string, call func(MessagingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{MethodName: name, Handler: unaryHandler(name, call)}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MessagingServiceServer).Subscribe(in, &subscribeServer{stream})
}

// ServiceDesc describes the messaging service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Ping", MessagingServiceServer.Ping),
		method("RegisterUser", MessagingServiceServer.RegisterUser),
		method("GetSalt", MessagingServiceServer.GetSalt),
		method("Login", MessagingServiceServer.Login),
		method("GetPublicKeys", MessagingServiceServer.GetPublicKeys),
		method("EnsureConversation", MessagingServiceServer.EnsureConversation),
		method("GetConversationKey", MessagingServiceServer.GetConversationKey),
		method("AddParticipant", MessagingServiceServer.AddParticipant),
		method("ListConversations", MessagingServiceServer.ListConversations),
		method("GetConversationsParticipants", MessagingServiceServer.GetConversationsParticipants),
		method("GetUnreadCounts", MessagingServiceServer.GetUnreadCounts),
		method("ListMessages", MessagingServiceServer.ListMessages),
		method("SendMessage", MessagingServiceServer.SendMessage),
		method("MarkDelivered", MessagingServiceServer.MarkDelivered),
		method("MarkRead", MessagingServiceServer.MarkRead),
		method("HideMessage", MessagingServiceServer.HideMessage),
		method("ArchiveConversation", MessagingServiceServer.ArchiveConversation),
		method("SendTyping", MessagingServiceServer.SendTyping),
		method("RequestAttachmentUpload", MessagingServiceServer.RequestAttachmentUpload),
		method("GetAttachmentURL", MessagingServiceServer.GetAttachmentURL),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "agrolink/messaging.json",
}

// RegisterMessagingServiceServer registers srv on s.
func RegisterMessagingServiceServer(s grpc.ServiceRegistrar, srv MessagingServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

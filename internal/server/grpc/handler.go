package grpc

import (
	"context"

	"github.com/agrolink/agrolink/internal/rpc"
	"github.com/agrolink/agrolink/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) userID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *rpc.PingRequest) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) RegisterUser(ctx context.Context, req *rpc.RegisterUserRequest) (*rpc.RegisterUserResponse, error) {

	s.logger.Info(ctx, "Registration request")

	result, err := s.users.Register(ctx, &models.User{
		UserName:          req.Username,
		Salt:              req.Salt,
		Verifier:          req.Verifier,
		IdentityPublicKey: req.IdentityPublicKey,
		SealedIdentityKey: req.SealedIdentityKey,
		IdentityKeyNonce:  req.IdentityKeyNonce,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "RegisterUser", err)
	}

	s.logger.Info(ctx, "Registered", "username", result.UserName, "user_id", result.ID)
	return &rpc.RegisterUserResponse{UserID: result.ID}, nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *rpc.GetSaltRequest) (*rpc.GetSaltResponse, error) {
	salt, err := s.users.GetSalt(ctx, req.Username)
	if err != nil {
		return nil, s.toStatus(ctx, "GetSalt", err)
	}
	return &rpc.GetSaltResponse{Salt: salt}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	res, err := s.users.Login(ctx, req.Username, req.VerifierCandidate)
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}
	return &rpc.LoginResponse{
		AccessToken:       res.AccessToken,
		UserID:            res.User.ID,
		IdentityPublicKey: res.User.IdentityPublicKey,
		SealedIdentityKey: res.User.SealedIdentityKey,
		IdentityKeyNonce:  res.User.IdentityKeyNonce,
	}, nil
}

func (s *GRPCServer) GetPublicKeys(ctx context.Context, req *rpc.GetPublicKeysRequest) (*rpc.GetPublicKeysResponse, error) {
	if _, err := s.userID(ctx); err != nil {
		return nil, err
	}
	keys, err := s.users.GetPublicKeys(ctx, req.UserIDs)
	if err != nil {
		return nil, s.toStatus(ctx, "GetPublicKeys", err)
	}
	return &rpc.GetPublicKeysResponse{Keys: keys}, nil
}

func (s *GRPCServer) EnsureConversation(ctx context.Context, req *rpc.EnsureConversationRequest) (*rpc.EnsureConversationResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]*models.Participant, len(req.Keys))
	for _, k := range req.Keys {
		if k != nil {
			keys[k.UserID] = keyFromRPC("", k)
		}
	}

	res, err := s.messaging.EnsureConversation(ctx, userID, req.OtherUserID, keys)
	if err != nil {
		return nil, s.toStatus(ctx, "EnsureConversation", err)
	}
	return &rpc.EnsureConversationResponse{
		Conversation: conversationToRPC(res.Conversation),
		Created:      res.Created,
		Key:          keyToRPC(res.Key),
	}, nil
}

func (s *GRPCServer) GetConversationKey(ctx context.Context, req *rpc.GetConversationKeyRequest) (*rpc.GetConversationKeyResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.messaging.GetConversationKey(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, s.toStatus(ctx, "GetConversationKey", err)
	}
	return &rpc.GetConversationKeyResponse{Key: keyToRPC(p)}, nil
}

func (s *GRPCServer) AddParticipant(ctx context.Context, req *rpc.AddParticipantRequest) (*rpc.Empty, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if req.Key == nil {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}
	if err := s.messaging.AddParticipant(ctx, userID, keyFromRPC(req.ConversationID, req.Key)); err != nil {
		return nil, s.toStatus(ctx, "AddParticipant", err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) ListConversations(ctx context.Context, req *rpc.ListConversationsRequest) (*rpc.ListConversationsResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.messaging.ListConversations(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, "ListConversations", err)
	}
	out := make([]*rpc.Conversation, 0, len(list))
	for _, c := range list {
		out = append(out, conversationToRPC(c))
	}
	return &rpc.ListConversationsResponse{Conversations: out}, nil
}

func (s *GRPCServer) GetConversationsParticipants(ctx context.Context, req *rpc.GetConversationsParticipantsRequest) (*rpc.GetConversationsParticipantsResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.messaging.GetConversationsParticipants(ctx, userID, req.ConversationIDs)
	if err != nil {
		return nil, s.toStatus(ctx, "GetConversationsParticipants", err)
	}
	return &rpc.GetConversationsParticipantsResponse{Participants: m}, nil
}

func (s *GRPCServer) GetUnreadCounts(ctx context.Context, req *rpc.GetUnreadCountsRequest) (*rpc.GetUnreadCountsResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.messaging.GetUnreadCounts(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, "GetUnreadCounts", err)
	}
	return &rpc.GetUnreadCountsResponse{Counts: counts}, nil
}

func (s *GRPCServer) ListMessages(ctx context.Context, req *rpc.ListMessagesRequest) (*rpc.ListMessagesResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messaging.ListMessages(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, s.toStatus(ctx, "ListMessages", err)
	}
	out := make([]*rpc.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToRPC(m))
	}
	return &rpc.ListMessagesResponse{Messages: out}, nil
}

func (s *GRPCServer) SendMessage(ctx context.Context, req *rpc.SendMessageRequest) (*rpc.SendMessageResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if req.Message == nil {
		return nil, status.Error(codes.InvalidArgument, "message is required")
	}
	m, err := s.messaging.SendMessage(ctx, userID, messageFromRPC(req.Message))
	if err != nil {
		return nil, s.toStatus(ctx, "SendMessage", err)
	}
	return &rpc.SendMessageResponse{Message: messageToRPC(m)}, nil
}

func (s *GRPCServer) MarkDelivered(ctx context.Context, req *rpc.MarkReceiptsRequest) (*rpc.MarkReceiptsResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := s.messaging.MarkDelivered(ctx, userID, req.MessageIDs)
	if err != nil {
		return nil, s.toStatus(ctx, "MarkDelivered", err)
	}
	return &rpc.MarkReceiptsResponse{Receipts: receiptsToRPC(rs)}, nil
}

func (s *GRPCServer) MarkRead(ctx context.Context, req *rpc.MarkReceiptsRequest) (*rpc.MarkReceiptsResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := s.messaging.MarkRead(ctx, userID, req.MessageIDs)
	if err != nil {
		return nil, s.toStatus(ctx, "MarkRead", err)
	}
	return &rpc.MarkReceiptsResponse{Receipts: receiptsToRPC(rs)}, nil
}

func (s *GRPCServer) HideMessage(ctx context.Context, req *rpc.HideMessageRequest) (*rpc.Empty, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.messaging.HideMessage(ctx, userID, req.MessageID); err != nil {
		return nil, s.toStatus(ctx, "HideMessage", err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) ArchiveConversation(ctx context.Context, req *rpc.ArchiveConversationRequest) (*rpc.Empty, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.messaging.ArchiveConversation(ctx, userID, req.ConversationID); err != nil {
		return nil, s.toStatus(ctx, "ArchiveConversation", err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) SendTyping(ctx context.Context, req *rpc.SendTypingRequest) (*rpc.Empty, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.messaging.SendTyping(ctx, userID, req.ConversationID); err != nil {
		return nil, s.toStatus(ctx, "SendTyping", err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) RequestAttachmentUpload(ctx context.Context, req *rpc.RequestAttachmentUploadRequest) (*rpc.RequestAttachmentUploadResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	up, err := s.attachments.RequestUpload(ctx, userID, req.ConversationID, req.FileName, req.MimeType, req.Size)
	if err != nil {
		return nil, s.toStatus(ctx, "RequestAttachmentUpload", err)
	}
	return &rpc.RequestAttachmentUploadResponse{StorageEnabled: up.StorageEnabled, Key: up.Key, URL: up.URL}, nil
}

func (s *GRPCServer) GetAttachmentURL(ctx context.Context, req *rpc.GetAttachmentURLRequest) (*rpc.GetAttachmentURLResponse, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.attachments.GetDownloadURL(ctx, userID, req.ConversationID, req.Key)
	if err != nil {
		return nil, s.toStatus(ctx, "GetAttachmentURL", err)
	}
	return &rpc.GetAttachmentURLResponse{URL: url}, nil
}

package client

import (
	"context"

	"github.com/agrolink/agrolink/internal/rpc"
)

// EventStream yields realtime events for one conversation until the stream
// ends or its context is cancelled.
type EventStream interface {
	Recv() (*rpc.Event, error)
}

// Client is the backend API used by the client services.
type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Register(ctx context.Context, req *rpc.RegisterUserRequest) (string, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	// Login authenticates and keeps the access token for subsequent calls.
	Login(ctx context.Context, username string, verifier []byte) (*rpc.LoginResponse, error)
	GetPublicKeys(ctx context.Context, userIDs []string) (map[string][]byte, error)

	EnsureConversation(ctx context.Context, otherUserID string, keys []*rpc.WrappedKey) (*rpc.EnsureConversationResponse, error)
	GetConversationKey(ctx context.Context, conversationID string) (*rpc.WrappedKey, error)
	AddParticipant(ctx context.Context, conversationID string, key *rpc.WrappedKey) error
	ListConversations(ctx context.Context) ([]*rpc.Conversation, error)
	GetConversationsParticipants(ctx context.Context, conversationIDs []string) (map[string][]string, error)
	GetUnreadCounts(ctx context.Context) (map[string]int64, error)
	ArchiveConversation(ctx context.Context, conversationID string) error

	ListMessages(ctx context.Context, conversationID string) ([]*rpc.Message, error)
	SendMessage(ctx context.Context, m *rpc.Message) (*rpc.Message, error)
	MarkDelivered(ctx context.Context, messageIDs []string) ([]*rpc.Receipt, error)
	MarkRead(ctx context.Context, messageIDs []string) ([]*rpc.Receipt, error)
	HideMessage(ctx context.Context, messageID string) error
	SendTyping(ctx context.Context, conversationID string) error

	RequestAttachmentUpload(ctx context.Context, req *rpc.RequestAttachmentUploadRequest) (*rpc.RequestAttachmentUploadResponse, error)
	GetAttachmentURL(ctx context.Context, conversationID, key string) (string, error)

	Subscribe(ctx context.Context, conversationID string) (EventStream, error)
}

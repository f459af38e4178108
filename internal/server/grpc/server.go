package grpc

import (
	"context"
	"net"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/rpc"
	"github.com/agrolink/agrolink/internal/server/metrics"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/agrolink/agrolink/internal/server/services"
	"google.golang.org/grpc"
)

// UserService is the account part of the business layer.
type UserService interface {
	Register(ctx context.Context, u *models.User) (*models.User, error)
	GetSalt(ctx context.Context, userName string) ([]byte, error)
	Login(ctx context.Context, userName string, verifierCandidate []byte) (*services.LoginResult, error)
	GetPublicKeys(ctx context.Context, userIDs []string) (map[string][]byte, error)
}

// MessagingService is implemented by *services.MessagingService.
type MessagingService interface {
	EnsureConversation(ctx context.Context, userID, otherUserID string, keys map[string]*models.Participant) (*services.EnsureResult, error)
	GetConversationKey(ctx context.Context, userID, conversationID string) (*models.Participant, error)
	AddParticipant(ctx context.Context, userID string, p *models.Participant) error
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	GetConversationsParticipants(ctx context.Context, userID string, conversationIDs []string) (map[string][]string, error)
	GetUnreadCounts(ctx context.Context, userID string) (map[string]int64, error)
	ArchiveConversation(ctx context.Context, userID, conversationID string) error
	ListMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error)
	SendMessage(ctx context.Context, userID string, m *models.Message) (*models.Message, error)
	MarkDelivered(ctx context.Context, userID string, messageIDs []string) ([]*models.Receipt, error)
	MarkRead(ctx context.Context, userID string, messageIDs []string) ([]*models.Receipt, error)
	HideMessage(ctx context.Context, userID, messageID string) error
	SendTyping(ctx context.Context, userID, conversationID string) error
	Subscribe(ctx context.Context, userID, conversationID string) (<-chan *models.Event, func(), error)
}

type AttachmentService interface {
	RequestUpload(ctx context.Context, userID, conversationID, fileName, mimeType string, size int64) (*models.AttachmentUpload, error)
	GetDownloadURL(ctx context.Context, userID, conversationID, key string) (string, error)
}

type GRPCServer struct {
	address     string
	users       UserService
	messaging   MessagingService
	attachments AttachmentService
	metrics     *metrics.Metrics
	logger      logging.Logger
	jwtSecret   []byte
}

var _ rpc.MessagingServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, us UserService, ms MessagingService, as AttachmentService,
	m *metrics.Metrics, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		users:       us,
		messaging:   ms,
		attachments: as,
		metrics:     m,
		jwtSecret:   []byte(secretKey),
	}
}

// NewServer builds the grpc.Server with interceptors and the service
// registered, without binding a listener.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	rpc.RegisterMessagingServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		// Open Subscribe streams would block GracefulStop forever.
		srv.Stop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

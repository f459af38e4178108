package messages

import (
	"context"

	"github.com/agrolink/agrolink/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, m *models.Message) (*models.Message, bool, error)
	GetByID(ctx context.Context, id string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID, viewerID string) ([]*models.Message, error)
	ConversationIDs(ctx context.Context, messageIDs []string) (map[string]string, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int64, error)
	Hide(ctx context.Context, messageID, userID string) error
}

package conversations

import (
	"context"
	"time"

	"github.com/agrolink/agrolink/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error
}

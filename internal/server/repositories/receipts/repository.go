package receipts

import (
	"context"
	"time"

	"github.com/agrolink/agrolink/internal/server/models"
)

type Repository interface {
	MarkDelivered(ctx context.Context, messageID, userID string, at time.Time) (*models.Receipt, error)
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) (*models.Receipt, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*models.Receipt, error)
}

package participants

import (
	"context"

	"github.com/agrolink/agrolink/internal/server/models"
)

type Repository interface {
	Add(ctx context.Context, p *models.Participant) error
	Get(ctx context.Context, conversationID, userID string) (*models.Participant, error)
	UserIDsByConversation(ctx context.Context, conversationIDs []string) (map[string][]string, error)
	Archive(ctx context.Context, conversationID, userID string) error
}

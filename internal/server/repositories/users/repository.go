package users

import (
	"context"

	"github.com/agrolink/agrolink/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, userName string) (*models.User, error)
	GetPublicKeys(ctx context.Context, userIDs []string) (map[string][]byte, error)
}

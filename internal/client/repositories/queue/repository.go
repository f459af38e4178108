// Package queue persists the offline queue in the local SQLite store.
//
// Every row carries a version. Update is a compare-and-set on that version,
// so two processes sharing one store never overwrite each other's progress:
// the loser gets common.ErrVersionConflict and is expected to reload the row.
package queue

import (
	"context"

	"github.com/agrolink/agrolink/internal/client/models"
)

type Repository interface {
	// Insert stores a new item with version 1.
	Insert(ctx context.Context, item *models.QueuedItem) error
	// Update writes Attempts if the stored version still equals item.Version
	// and bumps item.Version on success.
	Update(ctx context.Context, item *models.QueuedItem) error
	Get(ctx context.Context, id string) (*models.QueuedItem, error)
	Delete(ctx context.Context, id string) error
	// List returns all items in insertion order.
	List(ctx context.Context) ([]*models.QueuedItem, error)
}

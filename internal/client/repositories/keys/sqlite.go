package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/dbx"
)

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) StoreKey(ctx context.Context, conversationID, keyB64 string) error {
	if conversationID == "" || keyB64 == "" {
		return common.ErrorValidation
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_keys (conversation_id, key_b64, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET key_b64 = excluded.key_b64, stored_at = excluded.stored_at
	`, conversationID, keyB64, r.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store key for %s: %w", conversationID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetStoredKey(ctx context.Context, conversationID string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx,
		`SELECT key_b64 FROM conversation_keys WHERE conversation_id = ?`, conversationID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key for %s: %w", conversationID, err)
	}
	return key, nil
}

func (r *SQLiteRepository) DeleteKey(ctx context.Context, conversationID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversation_keys WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete key for %s: %w", conversationID, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversation_keys`); err != nil {
		return fmt.Errorf("failed to clear keys: %w", err)
	}
	return nil
}

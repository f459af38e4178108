package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/dbx"
)

const selectColumns = `id, kind, conversation_id, user_id, text, mime_type, attempts, version, created_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, item *models.QueuedItem) error {
	if item.Version == 0 {
		item.Version = 1
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offline_queue (id, kind, conversation_id, user_id, text, mime_type, attempts, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, string(item.Kind), item.ConversationID, item.UserID, item.Text, item.MimeType,
		item.Attempts, item.Version, item.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert queued item %s: %w", item.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, item *models.QueuedItem) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE offline_queue SET attempts = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, item.Attempts, item.ID, item.Version)
	if err != nil {
		return fmt.Errorf("failed to update queued item %s: %w", item.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update queued item %s: %w", item.ID, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, item.ID); err != nil {
			return err
		}
		return common.ErrVersionConflict
	}
	item.Version++
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.QueuedItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM offline_queue WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queued item %s: %w", id, err)
	}
	return item, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queued item %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.QueuedItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM offline_queue ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var items []*models.QueuedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.QueuedItem, error) {
	var (
		item      models.QueuedItem
		kind      string
		createdAt int64
	)
	if err := s.Scan(&item.ID, &kind, &item.ConversationID, &item.UserID, &item.Text, &item.MimeType,
		&item.Attempts, &item.Version, &createdAt); err != nil {
		return nil, err
	}
	item.Kind = models.QueueKind(kind)
	item.CreatedAt = time.Unix(0, createdAt)
	return &item, nil
}

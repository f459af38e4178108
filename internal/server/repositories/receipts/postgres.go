// Package receipts stores per-user delivery and read state of messages.
// A missing row means the message is neither delivered nor read for that
// user.
package receipts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agrolink/agrolink/internal/dbx"
	"github.com/agrolink/agrolink/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(s scanner) (*models.Receipt, error) {
	rc := &models.Receipt{}
	var delivered, read sql.NullTime
	if err := s.Scan(&rc.MessageID, &rc.UserID, &delivered, &read); err != nil {
		return nil, err
	}
	if delivered.Valid {
		t := delivered.Time
		rc.DeliveredAt = &t
	}
	if read.Valid {
		t := read.Time
		rc.ReadAt = &t
	}
	return rc, nil
}

// MarkDelivered upserts the receipt, keeping an earlier delivered_at.
func (r *PostgresRepository) MarkDelivered(ctx context.Context, messageID, userID string, at time.Time) (*models.Receipt, error) {
	query :=
		`INSERT INTO message_receipts (message_id, user_id, delivered_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (message_id, user_id)
		 DO UPDATE SET delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at)
		 RETURNING message_id, user_id, delivered_at, read_at`

	rc, err := scanReceipt(r.db.QueryRowContext(ctx, query, messageID, userID, at))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rc, nil
}

// MarkRead upserts the receipt as read. A read message is also delivered.
func (r *PostgresRepository) MarkRead(ctx context.Context, messageID, userID string, at time.Time) (*models.Receipt, error) {
	query :=
		`INSERT INTO message_receipts (message_id, user_id, delivered_at, read_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (message_id, user_id)
		 DO UPDATE SET delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at),
		               read_at = COALESCE(message_receipts.read_at, EXCLUDED.read_at)
		 RETURNING message_id, user_id, delivered_at, read_at`

	rc, err := scanReceipt(r.db.QueryRowContext(ctx, query, messageID, userID, at))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rc, nil
}

func (r *PostgresRepository) ListByConversation(ctx context.Context, conversationID string) ([]*models.Receipt, error) {
	query :=
		`SELECT r.message_id, r.user_id, r.delivered_at, r.read_at
		 FROM message_receipts r
		 JOIN messages m ON m.id = r.message_id
		 WHERE m.conversation_id = $1`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

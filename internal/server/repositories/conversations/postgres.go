// Package conversations stores conversation rows. Membership lives in the
// participants repository.
package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/dbx"
	"github.com/agrolink/agrolink/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, COALESCE(pair_key, ''), created_by, created_at, updated_at, last_message_at, last_message_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	var lastAt sql.NullTime
	var lastID sql.NullString
	if err := s.Scan(&c.ID, &c.PairKey, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &lastAt, &lastID); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		c.LastMessageAt = &t
	}
	if lastID.Valid {
		id := lastID.String
		c.LastMessageID = &id
	}
	return c, nil
}

// Create inserts a conversation. A concurrent insert of the same pair key
// yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	query :=
		`INSERT INTO conversations (id, pair_key, created_by)
		 VALUES ($1, NULLIF($2, ''), $3)
		 RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, c.ID, c.PairKey, c.CreatedBy).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + columns + ` FROM conversations WHERE id = $1`

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) GetByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	query := `SELECT ` + columns + ` FROM conversations WHERE pair_key = $1`

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, pairKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// ListForUser returns the user's non-archived conversations, newest first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	query :=
		`SELECT c.id, COALESCE(c.pair_key, ''), c.created_by, c.created_at, c.updated_at, c.last_message_at, c.last_message_id
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE p.user_id = $1 AND p.archived_at IS NULL
		 ORDER BY c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// TouchLastMessage updates the last-message cache and updated_at.
func (r *PostgresRepository) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	query :=
		`UPDATE conversations
		 SET last_message_at = $2, last_message_id = $3, updated_at = $2
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, conversationID, at, messageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Package messages stores encrypted messages and per-user hides.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const columns = `id, seq, conversation_id, sender_id, ciphertext, iv, mime_type, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*models.Message, error) {
	m := &models.Message{}
	err := s.Scan(&m.ID, &m.Seq, &m.ConversationID, &m.SenderID, &m.Ciphertext, &m.IV, &m.MimeType, &m.CreatedAt)
	return m, err
}

// Insert stores m under its client-assigned id. If a message with that id
// already exists (a retried send) the stored row is returned with
// created=false. An id reused by a different sender or conversation is
// rejected with common.ErrorAlreadyExists.
func (r *PostgresRepository) Insert(ctx context.Context, m *models.Message) (*models.Message, bool, error) {
	query :=
		`INSERT INTO messages (id, conversation_id, sender_id, ciphertext, iv, mime_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING seq, created_at`

	err := r.db.QueryRowContext(ctx, query, m.ID, m.ConversationID, m.SenderID, m.Ciphertext, m.IV, m.MimeType).
		Scan(&m.Seq, &m.CreatedAt)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	existing, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return nil, false, err
	}
	if existing.SenderID != m.SenderID || existing.ConversationID != m.ConversationID {
		return nil, false, common.ErrorAlreadyExists
	}
	return existing, false, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + columns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// ListByConversation returns messages oldest first, ties broken by the
// server sequence. Messages hidden by viewerID are skipped.
func (r *PostgresRepository) ListByConversation(ctx context.Context, conversationID, viewerID string) ([]*models.Message, error) {
	query :=
		`SELECT m.id, m.seq, m.conversation_id, m.sender_id, m.ciphertext, m.iv, m.mime_type, m.created_at
		 FROM messages m
		 WHERE m.conversation_id = $1
		   AND NOT EXISTS (
		     SELECT 1 FROM messages_deleted_by d WHERE d.message_id = m.id AND d.user_id = $2
		   )
		 ORDER BY m.created_at ASC, m.seq ASC`

	rows, err := r.db.QueryContext(ctx, query, conversationID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// ConversationIDs maps message ids to their conversation. Unknown ids are
// absent from the result.
func (r *PostgresRepository) ConversationIDs(ctx context.Context, messageIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	query := `SELECT id, conversation_id FROM messages WHERE id IN (` + dbx.Placeholders(1, len(messageIDs)) + `)`

	rows, err := r.db.QueryContext(ctx, query, dbx.Args(messageIDs)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, convID string
		if err := rows.Scan(&id, &convID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[id] = convID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// UnreadCounts counts, per conversation the user belongs to, messages from
// other senders with no read receipt for the user. Conversations with
// nothing unread are absent.
func (r *PostgresRepository) UnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	query :=
		`SELECT m.conversation_id, COUNT(*)
		 FROM messages m
		 JOIN conversation_participants p
		   ON p.conversation_id = m.conversation_id AND p.user_id = $1
		 LEFT JOIN message_receipts r
		   ON r.message_id = m.id AND r.user_id = $1
		 WHERE m.sender_id <> $1
		   AND r.read_at IS NULL
		   AND NOT EXISTS (
		     SELECT 1 FROM messages_deleted_by d WHERE d.message_id = m.id AND d.user_id = $1
		   )
		 GROUP BY m.conversation_id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var convID string
		var n int64
		if err := rows.Scan(&convID, &n); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if n > 0 {
			out[convID] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Hide removes a message from one user's listings.
func (r *PostgresRepository) Hide(ctx context.Context, messageID, userID string) error {
	query :=
		`INSERT INTO messages_deleted_by (message_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, messageID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

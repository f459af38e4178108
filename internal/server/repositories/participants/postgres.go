// Package participants stores conversation membership together with the
// conversation key wrapped for each member.
package participants

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

// Add inserts a participant row. Adding an existing member is a no-op, so
// retried adds from the client queue are safe.
func (r *PostgresRepository) Add(ctx context.Context, p *models.Participant) error {
	query :=
		`INSERT INTO conversation_participants (conversation_id, user_id, key_ephemeral_public, key_nonce, key_ciphertext)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (conversation_id, user_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, p.ConversationID, p.UserID, p.KeyEphemeralPublic, p.KeyNonce, p.KeyCiphertext)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the membership row, or common.ErrNotParticipant.
func (r *PostgresRepository) Get(ctx context.Context, conversationID, userID string) (*models.Participant, error) {
	query :=
		`SELECT conversation_id, user_id, joined_at, archived_at, key_ephemeral_public, key_nonce, key_ciphertext
		 FROM conversation_participants
		 WHERE conversation_id = $1 AND user_id = $2`

	p := &models.Participant{}
	var archived sql.NullTime
	err := r.db.QueryRowContext(ctx, query, conversationID, userID).
		Scan(&p.ConversationID, &p.UserID, &p.JoinedAt, &archived, &p.KeyEphemeralPublic, &p.KeyNonce, &p.KeyCiphertext)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotParticipant
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if archived.Valid {
		t := archived.Time
		p.ArchivedAt = &t
	}
	return p, nil
}

// UserIDsByConversation batch-loads member ids for many conversations.
func (r *PostgresRepository) UserIDsByConversation(ctx context.Context, conversationIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}

	query := `SELECT conversation_id, user_id FROM conversation_participants
		 WHERE conversation_id IN (` + dbx.Placeholders(1, len(conversationIDs)) + `)
		 ORDER BY conversation_id, joined_at, user_id`

	rows, err := r.db.QueryContext(ctx, query, dbx.Args(conversationIDs)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var convID, userID string
		if err := rows.Scan(&convID, &userID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[convID] = append(out[convID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Archive hides the conversation for one participant. Archiving twice keeps
// the first timestamp.
func (r *PostgresRepository) Archive(ctx context.Context, conversationID, userID string) error {
	query :=
		`UPDATE conversation_participants
		 SET archived_at = COALESCE(archived_at, now())
		 WHERE conversation_id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotParticipant
	}
	return nil
}

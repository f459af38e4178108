package users

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (username, salt, master_key_verifier, identity_public_key, sealed_identity_key, identity_key_nonce)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Salt, user.Verifier,
		user.IdentityPublicKey, user.SealedIdentityKey, user.IdentityKeyNonce).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	query :=
		`SELECT id, username, master_key_verifier, salt, identity_public_key, sealed_identity_key, identity_key_nonce
		 FROM users
		 WHERE username = $1
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userName).Scan(&user.ID, &user.UserName, &user.Verifier, &user.Salt,
		&user.IdentityPublicKey, &user.SealedIdentityKey, &user.IdentityKeyNonce)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// GetPublicKeys returns identity public keys by user id. Unknown ids are
// simply absent from the result.
func (r *PostgresRepository) GetPublicKeys(ctx context.Context, userIDs []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `SELECT id, identity_public_key FROM users WHERE id IN (` + dbx.Placeholders(1, len(userIDs)) + `)`

	rows, err := r.db.QueryContext(ctx, query, dbx.Args(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var key []byte
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[id] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}

// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login and identity key lookup.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/server/auth"
	"github.com/agrolink/agrolink/internal/server/config"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/agrolink/agrolink/internal/server/repositories/repomanager"
)

// LoginResult is returned on successful login. The key material lets the
// client unseal its identity key on a fresh device.
type LoginResult struct {
	AccessToken string
	User        *models.User
}

// UserService provides authentication-related operations:
// - Register: create users together with their identity key material
// - Login: verify credentials and mint an access token
// - GetPublicKeys: expose identity public keys for key wrapping
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Register creates a new user. The identity public key is required, since
// other users need it to share conversation keys.
func (s *UserService) Register(ctx context.Context, u *models.User) (*models.User, error) {
	u.UserName = strings.TrimSpace(u.UserName)
	if u.UserName == "" || len(u.Salt) == 0 || len(u.Verifier) == 0 || len(u.IdentityPublicKey) == 0 {
		return nil, common.ErrorValidation
	}

	repo := s.repomanager.Users(s.db)
	created, err := repo.Create(ctx, u)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// GetSalt returns the user's stored salt or a random salt if the user is absent,
// to avoid leaking existence through timing.
func (s *UserService) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.getRandomSalt(), nil
		}
		return nil, common.ErrorInternal
	}
	return user.Salt, nil
}

// Login verifies the provided verifierCandidate against the stored verifier and,
// on success, returns an access token with the user's key material.
func (s *UserService) Login(ctx context.Context, userName string, verifierCandidate []byte) (*LoginResult, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if !s.checkVerifier(user.Verifier, verifierCandidate) {
		return nil, common.ErrorUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &LoginResult{AccessToken: token, User: user}, nil
}

// GetPublicKeys returns identity public keys by user id. Unknown ids are
// simply absent from the result.
func (s *UserService) GetPublicKeys(ctx context.Context, userIDs []string) (map[string][]byte, error) {
	if len(userIDs) == 0 {
		return map[string][]byte{}, nil
	}
	keys, err := s.repomanager.Users(s.db).GetPublicKeys(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("error loading public keys: %w", err)
	}
	return keys, nil
}

func (s *UserService) getRandomSalt() []byte { return common.GenerateRandByteArray(32) }

func (s *UserService) checkVerifier(verifier []byte, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}

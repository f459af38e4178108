// Package services contains application services for the AgroLink client.
// This file defines the authentication service: online/offline login, register,
// liveness probe, and housekeeping of local (offline) auth metadata.
package services

import (
	"context"
	"crypto/ecdh"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/repositories/metadata"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/cryptox"
	"github.com/agrolink/agrolink/internal/rpc"
)

// Session is the signed-in user on this device. Identity is the unsealed
// X25519 identity key used to unwrap conversation keys.
type Session struct {
	UserID   string
	UserName string
	Identity *ecdh.PrivateKey

	// Online is false after an offline login: no access token is held.
	Online bool
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create a new user on the server together with an identity key.
//   - OnlineLogin: authenticate against the server and persist offline auth data.
//   - OfflineLogin: verify credentials against locally cached data.
//   - Ping: check server liveness.
//   - Close: release underlying client resources.
//   - ClearOfflineData: wipe locally cached auth metadata.
type AuthService interface {
	Register(ctx context.Context, username string, password []byte) error
	OnlineLogin(ctx context.Context, username string, password []byte) (*Session, error)
	OfflineLogin(ctx context.Context, username string, password []byte) (*Session, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

// ErrLocalDataNotAvailable is returned by OfflineLogin when this device has
// never completed an online login.
var ErrLocalDataNotAvailable = errors.New("local data unavailable")

// authService is the concrete AuthService backed by a remote Client
// and a local SQL database for offline metadata.
type authService struct {
	client client.Client
	db     *sql.DB
}

// NewAuthService constructs an AuthService bound to the given API client and DB.
func NewAuthService(client client.Client, db *sql.DB) AuthService {
	return &authService{client: client, db: db}
}

func (a *authService) getMetadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(a.db)
}

// Register creates a new account on the server. It generates a random salt,
// derives a master key from the password, computes a verifier, creates an
// identity key pair and seals the private half with the master key.
func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	username = strings.TrimSpace(username)
	if username == "" || len(password) == 0 {
		return common.ErrorValidation
	}

	salt := common.GenerateRandByteArray(32)
	masterKey := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(masterKey)

	identity, err := cryptox.GenerateIdentityKey()
	if err != nil {
		return err
	}
	sealed, nonce, err := cryptox.SealBytes(masterKey, identity.Bytes())
	if err != nil {
		return fmt.Errorf("seal identity key: %w", err)
	}

	_, err = a.client.Register(ctx, &rpc.RegisterUserRequest{
		Username:          username,
		Salt:              salt,
		Verifier:          cryptox.MakeVerifier(masterKey),
		IdentityPublicKey: identity.PublicKey().Bytes(),
		SealedIdentityKey: sealed,
		IdentityKeyNonce:  nonce,
	})
	return err
}

// OnlineLogin authenticates against the server, unseals the identity key
// returned with the token, and saves what OfflineLogin needs.
func (a *authService) OnlineLogin(ctx context.Context, userName string, password []byte) (*Session, error) {
	salt, err := a.client.GetSalt(ctx, userName)
	if err != nil {
		return nil, fmt.Errorf("get salt error: %w", err)
	}

	masterKey := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(masterKey)
	verifier := cryptox.MakeVerifier(masterKey)

	resp, err := a.client.Login(ctx, userName, verifier)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	identity, err := openIdentity(masterKey, resp.IdentityKeyNonce, resp.SealedIdentityKey)
	if err != nil {
		return nil, err
	}

	err = a.getMetadataRepo().SetMany(ctx, map[string][]byte{
		metadata.KeyUserID:            []byte(resp.UserID),
		metadata.KeyUserName:          []byte(userName),
		metadata.KeySalt:              salt,
		metadata.KeyVerifier:          verifier,
		metadata.KeyIdentityPublicKey: resp.IdentityPublicKey,
		metadata.KeySealedIdentityKey: resp.SealedIdentityKey,
		metadata.KeyIdentityKeyNonce:  resp.IdentityKeyNonce,
	})
	if err != nil {
		return nil, fmt.Errorf("offline data saving error: %w", err)
	}

	return &Session{UserID: resp.UserID, UserName: userName, Identity: identity, Online: true}, nil
}

// OfflineLogin derives the master key from the locally stored salt and
// verifies it against the cached verifier. The session it returns can read
// locally cached keys and queue outgoing messages.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) (*Session, error) {
	md, err := a.getMetadataRepo().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{metadata.KeyUserID, metadata.KeyUserName, metadata.KeySalt, metadata.KeyVerifier,
		metadata.KeySealedIdentityKey, metadata.KeyIdentityKeyNonce} {
		if len(md[k]) == 0 {
			return nil, ErrLocalDataNotAvailable
		}
	}
	if string(md[metadata.KeyUserName]) != username {
		return nil, client.ErrUnauthorized
	}

	masterKey := cryptox.DeriveMasterKey(password, md[metadata.KeySalt])
	defer common.WipeByteArray(masterKey)

	if subtle.ConstantTimeCompare(md[metadata.KeyVerifier], cryptox.MakeVerifier(masterKey)) == 0 {
		return nil, client.ErrUnauthorized
	}

	identity, err := openIdentity(masterKey, md[metadata.KeyIdentityKeyNonce], md[metadata.KeySealedIdentityKey])
	if err != nil {
		return nil, err
	}
	return &Session{UserID: string(md[metadata.KeyUserID]), UserName: username, Identity: identity}, nil
}

func openIdentity(masterKey, nonce, sealed []byte) (*ecdh.PrivateKey, error) {
	raw, err := cryptox.OpenBytes(masterKey, nonce, sealed)
	if err != nil {
		return nil, fmt.Errorf("unseal identity key: %w", err)
	}
	defer common.WipeByteArray(raw)
	return cryptox.ParseIdentityPrivateKey(raw)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// ClearOfflineData wipes locally cached auth metadata (e.g., on logout).
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return a.getMetadataRepo().Clear(ctx)
}

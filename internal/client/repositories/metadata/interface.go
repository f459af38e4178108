// Package metadata stores small key/value facts about the local session:
// who is signed in on this device and their sealed identity key.
package metadata

import (
	"context"
)

// Keys used by the client services.
const (
	KeyUserID            = "user_id"
	KeyUserName          = "username"
	KeySalt              = "salt"
	KeyVerifier          = "verifier"
	KeyIdentityPublicKey = "identity_public_key"
	KeySealedIdentityKey = "sealed_identity_key"
	KeyIdentityKeyNonce  = "identity_key_nonce"
)

// Repository is a byte-valued key/value store. Get returns (nil, nil) for
// absent keys.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all pairs atomically.
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

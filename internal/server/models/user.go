package models

import "time"

// User is a registered account. The identity private key is sealed with the
// user's master key and is opaque to the server.
type User struct {
	ID                string
	UserName          string
	Salt              []byte
	Verifier          []byte
	IdentityPublicKey []byte
	SealedIdentityKey []byte
	IdentityKeyNonce  []byte
	CreatedAt         time.Time
}

package cryptox

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var x25519Curve = ecdh.X25519()

// hkdfInfo binds derived wrapping keys to their purpose.
var hkdfInfo = []byte("agrolink conversation key wrap v1")

// WrappedKey is a conversation key encrypted for one participant.
// EphemeralPublic is the sender-side X25519 public key used for the ECDH.
type WrappedKey struct {
	EphemeralPublic []byte
	Nonce           []byte
	Ciphertext      []byte
}

// GenerateIdentityKey creates a new X25519 identity key pair.
func GenerateIdentityKey() (*ecdh.PrivateKey, error) {
	priv, err := x25519Curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate X25519 private key: %w", err)
	}
	return priv, nil
}

// ParseIdentityPrivateKey restores a private key from its 32 raw bytes.
func ParseIdentityPrivateKey(raw []byte) (*ecdh.PrivateKey, error) {
	priv, err := x25519Curve.NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse X25519 private key: %w", err)
	}
	return priv, nil
}

// ParseIdentityPublicKey restores a public key from its 32 raw bytes.
func ParseIdentityPublicKey(raw []byte) (*ecdh.PublicKey, error) {
	pub, err := x25519Curve.NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse X25519 public key: %w", err)
	}
	return pub, nil
}

func deriveWrappingKey(shared, ephemeralPublic, recipientPublic []byte) ([]byte, error) {
	salt := make([]byte, 0, len(ephemeralPublic)+len(recipientPublic))
	salt = append(salt, ephemeralPublic...)
	salt = append(salt, recipientPublic...)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive wrapping key: %w", err)
	}
	return key, nil
}

// WrapKey encrypts convKey for the holder of recipientPublic using a fresh
// ephemeral X25519 key, HKDF-SHA256 and AES-GCM.
func WrapKey(recipientPublic []byte, convKey []byte) (*WrappedKey, error) {
	pub, err := ParseIdentityPublicKey(recipientPublic)
	if err != nil {
		return nil, err
	}
	eph, err := GenerateIdentityKey()
	if err != nil {
		return nil, err
	}
	shared, err := eph.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	ephPub := eph.PublicKey().Bytes()
	wk, err := deriveWrappingKey(shared, ephPub, recipientPublic)
	if err != nil {
		return nil, err
	}

	ct, nonce, err := SealBytes(wk, convKey)
	if err != nil {
		return nil, err
	}
	return &WrappedKey{EphemeralPublic: ephPub, Nonce: nonce, Ciphertext: ct}, nil
}

// UnwrapKey recovers a conversation key wrapped for identity.
func UnwrapKey(identity *ecdh.PrivateKey, w *WrappedKey) ([]byte, error) {
	if w == nil {
		return nil, fmt.Errorf("no wrapped key")
	}
	ephPub, err := ParseIdentityPublicKey(w.EphemeralPublic)
	if err != nil {
		return nil, err
	}
	shared, err := identity.ECDH(ephPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	wk, err := deriveWrappingKey(shared, w.EphemeralPublic, identity.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}
	return OpenBytes(wk, w.Nonce, w.Ciphertext)
}

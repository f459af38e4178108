package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateConversationKey returns a new random AES-256 key for a conversation.
func GenerateConversationKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate conversation key: %w", err)
	}
	return key, nil
}

// ExportKeyBase64 encodes raw key material as standard base64.
func ExportKeyBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// ImportKeyBase64 decodes a key produced by ExportKeyBase64. Only valid AES
// key lengths (16, 24, 32 bytes) are accepted.
func ImportKeyBase64(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("invalid key length %d", len(key))
	}
}

// EncryptText encrypts plaintext under key with a random 96-bit IV and
// returns the IV and ciphertext, both base64 encoded.
func EncryptText(key []byte, plaintext string) (ivB64, ctB64 string, err error) {
	ct, iv, err := SealBytes(key, []byte(plaintext))
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(iv), base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptText reverses EncryptText. Any failure (bad base64, wrong key,
// tampered data) is returned as an error; it never yields partial plaintext.
func DecryptText(key []byte, ivB64, ctB64 string) (string, error) {
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	pt, err := OpenBytes(key, iv, ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncryptBytes seals a binary payload (an attachment) under a conversation
// key. The nonce is prepended to the returned ciphertext.
func EncryptBytes(key, data []byte) ([]byte, error) {
	ct, nonce, err := SealBytes(key, data)
	if err != nil {
		return nil, err
	}
	return append(nonce, ct...), nil
}

// DecryptBytes opens a payload produced by EncryptBytes.
func DecryptBytes(key, blob []byte) ([]byte, error) {
	const nonceSize = 12
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	return OpenBytes(key, blob[:nonceSize], blob[nonceSize:])
}

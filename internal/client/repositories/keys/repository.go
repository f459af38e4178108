// Package keys persists conversation symmetric keys on this device, exported
// as base64 and keyed by conversation id. Keys never expire and are never
// rotated.
package keys

import "context"

// Repository stores conversation keys.
type Repository interface {
	// StoreKey saves or replaces the key for a conversation.
	StoreKey(ctx context.Context, conversationID, keyB64 string) error
	// GetStoredKey returns common.ErrorNotFound when no key is stored.
	GetStoredKey(ctx context.Context, conversationID string) (string, error)
	DeleteKey(ctx context.Context, conversationID string) error
	Clear(ctx context.Context) error
}

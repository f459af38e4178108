// Package common defines shared constants and sentinel errors used across
// client and server layers of AgroLink messaging. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Messaging errors.
	ErrNotParticipant     = errors.New("not a conversation participant")
	ErrSelfConversation   = errors.New("cannot start a conversation with yourself")
	ErrNoConversationKey  = errors.New("no conversation key")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrStorageDisabled    = errors.New("attachment storage disabled")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Package models defines client-side data models used by the AgroLink
// messaging client: decrypted conversations and messages as the UI sees them,
// queued offline work, and attachment references.
package models

// Package cli provides the interactive AgroLink chat client.
//
// It wires configuration, the local store, the offline queue and the client
// services into a REPL that keeps working while the backend is unreachable:
// outgoing messages and participant adds are queued and retried in the
// background, and an offline login unlocks locally cached conversation keys.
//
// Key features:
//   - Register / Login / Logout (online with offline fallback)
//   - Start a direct chat, list conversations with unread counts
//   - Open a conversation: history, live messages, typing and receipts
//   - Send text and encrypted attachments
//   - Inspect, flush and purge the offline queue
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli

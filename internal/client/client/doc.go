// Package client contains client-side building blocks for AgroLink messaging.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) to talk
//     to the AgroLink backend: registration and login, identity key lookup,
//     conversations, messages, receipts, attachments and the realtime stream.
//  2. A concrete gRPC implementation (see GRPCClient) that manages a
//     connection, injects an access token via interceptors, and maps gRPC
//     status codes to sentinel errors.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations),
//     wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrNotFound. Messaging errors
// reported by the server are mapped back to the matching values in
// internal/common (for example common.ErrNotParticipant).
//
// # Concurrency
//
// GRPCClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation.
package client

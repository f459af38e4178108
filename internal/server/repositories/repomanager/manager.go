package repomanager

import (
	"context"
	"database/sql"

	"github.com/agrolink/agrolink/internal/dbx"
	"github.com/agrolink/agrolink/internal/server/repositories/conversations"
	"github.com/agrolink/agrolink/internal/server/repositories/messages"
	"github.com/agrolink/agrolink/internal/server/repositories/participants"
	"github.com/agrolink/agrolink/internal/server/repositories/receipts"
	"github.com/agrolink/agrolink/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can use
// the same constructors inside and outside of dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Conversations(db dbx.DBTX) conversations.Repository
	Participants(db dbx.DBTX) participants.Repository
	Messages(db dbx.DBTX) messages.Repository
	Receipts(db dbx.DBTX) receipts.Repository
}

package repomanager

import (
	"context"
	"database/sql"

	"github.com/sparkbridge/server/internal/dbx"
	"github.com/sparkbridge/server/internal/server/repositories/profiles"
	"github.com/sparkbridge/server/internal/server/repositories/refreshtokens"
	"github.com/sparkbridge/server/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, so a service can compose several writes in one unit of work.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Profiles(db dbx.DBTX) profiles.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}

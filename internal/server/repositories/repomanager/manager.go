package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/authtokens"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/confirmations"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/totpsecrets"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// repository code runs on the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	AuthTokens(db dbx.DBTX) authtokens.Repository
	Confirmations(db dbx.DBTX) confirmations.Repository
	TotpSecrets(db dbx.DBTX) totpsecrets.Repository
}

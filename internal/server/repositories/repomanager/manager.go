package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/insightly/internal/dbx"
	"github.com/dmitrijs2005/insightly/internal/server/repositories/reports"
)

// RepositoryManager vends repository implementations bound to a DBTX and
// exposes a schema migration hook. Passing a transaction handle lets a
// service run several repository calls atomically.
type RepositoryManager interface {
	Reports(db dbx.DBTX) reports.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}

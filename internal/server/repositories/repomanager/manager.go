package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tiergate/internal/dbx"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/identities"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/tierchanges"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Records(db dbx.DBTX) records.Store
	Identities(db dbx.DBTX) identities.Repository
	TierChanges(db dbx.DBTX) tierchanges.Repository
}

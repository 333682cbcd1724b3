// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tiergate/internal/dbx"
	"github.com/dmitrijs2005/tiergate/internal/server/migrations"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/identities"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/tierchanges"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Records returns the remote state store bound to the provided DBTX.
func (m *PostgresRepositoryManager) Records(db dbx.DBTX) records.Store {
	return records.NewPostgresStore(db)
}

// Identities returns an identities.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Identities(db dbx.DBTX) identities.Repository {
	return identities.NewPostgresRepository(db)
}

// TierChanges returns a tierchanges.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) TierChanges(db dbx.DBTX) tierchanges.Repository {
	return tierchanges.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/dbx"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID, identityID, provider string) error {
	query := `
		INSERT INTO identities (identity_id, user_id, provider)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, identityID, userID, provider); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByIdentity(ctx context.Context, identityID string) (*models.Identity, error) {
	query := `
		SELECT user_id, identity_id, provider, created_at
		FROM identities
		WHERE identity_id = $1
		ORDER BY created_at
		LIMIT 1
	`
	i := &models.Identity{}
	if err := r.db.QueryRowContext(ctx, query, identityID).Scan(&i.UserID, &i.IdentityID, &i.Provider, &i.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrRecordNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return i, nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	query := `
		DELETE FROM identities
		WHERE user_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

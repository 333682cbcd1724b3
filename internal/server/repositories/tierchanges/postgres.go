package tierchanges

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tiergate/internal/dbx"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/tier"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, c models.TierChange) error {
	query := `
		INSERT INTO tier_changes (user_id, old_tier, new_tier, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, c.UserID, int64(c.OldTier), int64(c.NewTier), c.Reason, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.TierChange, error) {
	query := `
		SELECT old_tier, new_tier, reason, changed_at
		FROM tier_changes
		WHERE user_id = $1
		ORDER BY changed_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.TierChange
	for rows.Next() {
		var (
			c        = models.TierChange{UserID: userID}
			old, cur int64
		)
		if err := rows.Scan(&old, &cur, &c.Reason, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if c.OldTier, err = parseTier(old); err != nil {
			return nil, err
		}
		if c.NewTier, err = parseTier(cur); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// parseTier accepts NoTier, which marks the first assignment.
func parseTier(v int64) (tier.Tier, error) {
	if v == int64(tier.NoTier) {
		return tier.NoTier, nil
	}
	return tier.Parse(v)
}

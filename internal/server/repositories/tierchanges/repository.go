// Package tierchanges stores the history of tier transitions.
package tierchanges

import (
	"context"

	"github.com/dmitrijs2005/tiergate/internal/server/models"
)

type Repository interface {
	// Append records a transition.
	Append(ctx context.Context, c models.TierChange) error

	// ListByUser returns a user's transitions, oldest first.
	ListByUser(ctx context.Context, userID string) ([]models.TierChange, error)
}

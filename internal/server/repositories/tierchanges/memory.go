package tierchanges

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/tiergate/internal/server/models"
)

type MemoryRepository struct {
	mu      sync.Mutex
	changes []models.TierChange
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(_ context.Context, c models.TierChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]models.TierChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.TierChange
	for _, c := range r.changes {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

package identities

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
)

// MemoryRepository is an in-process Repository. Bindings are kept in
// insertion order.
type MemoryRepository struct {
	mu    sync.Mutex
	items []models.Identity
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, userID, identityID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.items {
		if i.IdentityID == identityID && i.UserID == userID {
			return nil
		}
	}
	r.items = append(r.items, models.Identity{
		UserID: userID, IdentityID: identityID, Provider: provider, CreatedAt: time.Now(),
	})
	return nil
}

func (r *MemoryRepository) FindByIdentity(_ context.Context, identityID string) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.items {
		if i.IdentityID == identityID {
			return &i, nil
		}
	}
	return nil, common.ErrRecordNotFound
}

func (r *MemoryRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = slices.DeleteFunc(r.items, func(i models.Identity) bool { return i.UserID == userID })
	return nil
}

// Len returns the number of bindings.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

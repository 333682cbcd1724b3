package services

import (
	"context"

	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
)

// Profiles records profile completion, the Tier3 predicate.
type Profiles struct {
	core
}

func NewProfiles(d Deps) *Profiles {
	return &Profiles{core: newCore(d, "profiles")}
}

// Complete marks the profile complete and re-resolves. Completing an already
// complete profile changes nothing.
func (s *Profiles) Complete(ctx context.Context, userID string) (*models.UserRecord, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.ProfileComplete {
		return u, nil
	}

	pop, err := s.population(ctx)
	if err != nil {
		return nil, err
	}

	u.ProfileComplete = true
	tiers, old := s.retier(ctx, u, pop)
	if err := s.save(ctx, u, tiers, records.Fields{records.FieldProfileComplete: true}); err != nil {
		return nil, err
	}

	s.emit(ctx, u.ID, old, u.CurrentTier, models.ReasonProfile)
	return u, nil
}

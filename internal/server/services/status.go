package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tiergate/internal/cache"
	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/tier"
)

// Status is the read-only view of a user's tier served to UI collaborators.
type Status struct {
	UserID         string
	Tier           tier.Tier
	LockedTier     tier.Tier
	IsEarlyAdopter bool
	HasAccount     bool
	ReferralCode   string
	// Stale is set when the remote store was unreachable and the view was
	// built from the local cache.
	Stale    bool
	Progress Progress
}

// Progress reports how far the user is from the next unlocks.
type Progress struct {
	ProfileComplete  bool
	ReferralCount    uint32
	ReferralTarget   uint32
	EngagementDays   int
	EngagementTarget int

	Population           uint64
	Phase                tier.PhaseName
	PhaseRequiresAccount bool

	// NextDecayAt is zero when no further decay applies to the user.
	NextDecayAt   uint64
	NextDecayTier tier.Tier
}

// StatusReader answers status and current-tier queries.
type StatusReader struct {
	core
}

func NewStatusReader(d Deps) *StatusReader {
	return &StatusReader{core: newCore(d, "status")}
}

// Status returns the tier of userID together with progress metrics.
// Nothing is written back: stored tiers only change through the write paths.
func (s *StatusReader) Status(ctx context.Context, userID string) (*Status, error) {
	u, pop, stale, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	current, locked := s.effective(u, pop)

	st := &Status{
		UserID:         u.ID,
		Tier:           current,
		LockedTier:     locked,
		IsEarlyAdopter: u.IsEarlyAdopter,
		HasAccount:     u.HasAccount,
		ReferralCode:   u.ReferralCode,
		Stale:          stale,
		Progress: Progress{
			ProfileComplete:  u.ProfileComplete,
			ReferralCount:    u.ReferralCount,
			ReferralTarget:   s.policy.ReferralThreshold,
			EngagementDays:   u.WeeklyEngagement.Len(),
			EngagementTarget: s.policy.EngagementDays,
			Population:       pop,
		},
	}

	if phase, ok := s.policy.Phases.Lookup(pop); ok {
		st.Progress.Phase = phase.Name
		st.Progress.PhaseRequiresAccount = phase.RequiresAccount
	}
	if u.IsEarlyAdopter && !u.HasAccount {
		if next, ok := s.policy.Decay.Next(pop); ok {
			st.Progress.NextDecayAt = next.AfterPopulation
			st.Progress.NextDecayTier = next.CeilingTier
		}
	}

	return st, nil
}

// CurrentTier returns the tier enforced for userID.
func (s *StatusReader) CurrentTier(ctx context.Context, userID string) (tier.Tier, error) {
	u, pop, _, err := s.load(ctx, userID)
	if err != nil {
		return tier.NoTier, err
	}
	current, _ := s.effective(u, pop)
	return current, nil
}

// effective caps the stored tiers of an unlinked user at the ceiling for
// pop. The stored values lag until the user's next write, and a decay must
// be enforced without waiting for it. Linked users are frozen.
func (s *StatusReader) effective(u *models.UserRecord, pop uint64) (current, locked tier.Tier) {
	if u.HasAccount {
		return u.CurrentTier, u.LockedTier
	}
	ceiling := s.policy.Ceiling(u.Attributes(), pop)
	return min(u.CurrentTier, ceiling), min(u.LockedTier, ceiling)
}

// load reads the record and population remotely, falling back to the local
// mirror when the store is unavailable.
func (s *StatusReader) load(ctx context.Context, userID string) (*models.UserRecord, uint64, bool, error) {
	u, err := s.get(ctx, userID)
	if err == nil {
		var pop uint64
		pop, err = s.population(ctx)
		if err == nil {
			s.mirror(ctx, u)
			return u, pop, false, nil
		}
	}
	if !errors.Is(err, common.ErrRemoteUnavailable) {
		return nil, 0, false, err
	}

	cached := &models.UserRecord{}
	ok, cerr := cache.GetJSON(ctx, s.cache, recordKey(userID), cached)
	if cerr != nil || !ok {
		if cerr != nil {
			s.log.Warn(ctx, "failed to read cached record", "user_id", userID, "error", cerr)
		}
		return nil, 0, false, err
	}

	var pop uint64
	if _, cerr := cache.GetJSON(ctx, s.cache, populationKey, &pop); cerr != nil {
		s.log.Warn(ctx, "failed to read cached population", "error", cerr)
	}
	pop = max(pop, cached.UserNumber)

	s.log.Warn(ctx, "remote store unavailable, serving cached status", "user_id", userID, "error", err)
	return cached, pop, true, nil
}

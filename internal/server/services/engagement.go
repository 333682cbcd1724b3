package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/timex"
)

// Engagement tracks the weekly activity streak that gates Tier5.
type Engagement struct {
	core
	loc *time.Location
}

func NewEngagement(d Deps) *Engagement {
	return &Engagement{core: newCore(d, "engagement"), loc: time.UTC}
}

// RecordHeartbeat records activity for today. A second heartbeat on the
// same calendar day is a no-op and returns the stored record.
//
// The engagement set, LastActiveAt and both tiers are written together, so
// a Tier4/Tier5 transition caused by the streak lands in the same write.
func (s *Engagement) RecordHeartbeat(ctx context.Context, userID string) (*models.UserRecord, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().In(s.loc)
	today := models.DayIndex(now, s.loc)
	if u.WeeklyEngagement.Contains(today) && timex.SameDay(u.LastActiveAt, now, s.loc) {
		return u, nil
	}

	pop, err := s.population(ctx)
	if err != nil {
		return nil, err
	}

	u.WeeklyEngagement = u.WeeklyEngagement.Record(today)
	u.LastActiveAt = now.UTC()
	tiers, old := s.retier(ctx, u, pop)

	if err := s.save(ctx, u, tiers, records.Fields{
		records.FieldWeeklyEngagement: u.WeeklyEngagement,
		records.FieldLastActiveAt:     u.LastActiveAt,
	}); err != nil {
		return nil, err
	}

	s.log.Debug(ctx, "heartbeat recorded",
		"user_id", u.ID,
		"day", today,
		"engagement_days", u.WeeklyEngagement.Len(),
	)
	s.emit(ctx, u.ID, old, u.CurrentTier, models.ReasonHeartbeat)

	return u, nil
}

package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/logging"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/tierchanges"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"go.uber.org/multierr"
)

// TierChanged is published whenever a user's current tier moves.
type TierChanged struct {
	UserID  string
	OldTier tier.Tier
	NewTier tier.Tier
	Reason  string
	At      time.Time
}

// Notifier receives tier changes. Delivery is best effort: errors are
// logged by the caller and never fail the operation.
type Notifier interface {
	NotifyTierChanged(ctx context.Context, ev TierChanged) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev TierChanged) error

func (f NotifierFunc) NotifyTierChanged(ctx context.Context, ev TierChanged) error {
	return f(ctx, ev)
}

type NopNotifier struct{}

func (NopNotifier) NotifyTierChanged(context.Context, TierChanged) error { return nil }

// LogNotifier writes each change as a structured log line.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("module", "notify")}
}

func (n *LogNotifier) NotifyTierChanged(ctx context.Context, ev TierChanged) error {
	n.log.Info(ctx, "tier changed",
		"user_id", ev.UserID,
		"old_tier", ev.OldTier.String(),
		"new_tier", ev.NewTier.String(),
		"reason", ev.Reason,
	)
	return nil
}

// HistoryNotifier appends each change to the tier history table.
type HistoryNotifier struct {
	repo tierchanges.Repository
}

func NewHistoryNotifier(repo tierchanges.Repository) *HistoryNotifier {
	return &HistoryNotifier{repo: repo}
}

func (n *HistoryNotifier) NotifyTierChanged(ctx context.Context, ev TierChanged) error {
	return n.repo.Append(ctx, models.TierChange{
		UserID:    ev.UserID,
		OldTier:   ev.OldTier,
		NewTier:   ev.NewTier,
		Reason:    ev.Reason,
		ChangedAt: ev.At,
	})
}

// MultiNotifier fans a change out to every notifier and combines their
// errors.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyTierChanged(ctx context.Context, ev TierChanged) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.NotifyTierChanged(ctx, ev))
	}
	return err
}

// Package services contains the server-side business logic of the tier
// engine: registration, engagement, referrals, profile completion, account
// linking, status reads and the retention sweeper.
//
// Every operation that changes a tier-relevant attribute re-runs the
// resolver through core.retier; nothing else writes LockedTier or
// CurrentTier.
package services

import (
	"context"
	"maps"
	"time"

	"github.com/coder/quartz"
	"github.com/dmitrijs2005/tiergate/internal/cache"
	"github.com/dmitrijs2005/tiergate/internal/logging"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/identities"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/tier"
)

// DefaultRemoteTimeout bounds remote store calls when Deps leaves it unset.
const DefaultRemoteTimeout = 5 * time.Second

// Deps are the collaborators shared by every service. Build them once in
// the application and pass the same value to each constructor.
type Deps struct {
	Policy        tier.Policy
	Records       records.Store
	Identities    identities.Repository
	Cache         cache.Store
	Notifier      Notifier
	Metrics       *Metrics
	Logger        logging.Logger
	Clock         quartz.Clock
	RemoteTimeout time.Duration
}

// core is Deps with defaults filled in, embedded by each service.
type core struct {
	policy        tier.Policy
	records       records.Store
	identities    identities.Repository
	cache         cache.Store
	notifier      Notifier
	metrics       *Metrics
	log           logging.Logger
	clock         quartz.Clock
	remoteTimeout time.Duration
}

func newCore(d Deps, module string) core {
	c := core{
		policy:        d.Policy,
		records:       d.Records,
		identities:    d.Identities,
		cache:         d.Cache,
		notifier:      d.Notifier,
		metrics:       d.Metrics,
		log:           d.Logger,
		clock:         d.Clock,
		remoteTimeout: d.RemoteTimeout,
	}
	if len(c.policy.Phases) == 0 {
		c.policy = tier.DefaultPolicy()
	}
	if c.identities == nil {
		c.identities = identities.NewMemoryRepository()
	}
	if c.cache == nil {
		c.cache = cache.NewMemoryStore()
	}
	if c.notifier == nil {
		c.notifier = NopNotifier{}
	}
	if c.metrics == nil {
		c.metrics, _ = NewMetrics(nil)
	}
	if c.log == nil {
		c.log = logging.NewNopLogger()
	}
	c.log = c.log.With("module", module)
	if c.clock == nil {
		c.clock = quartz.NewReal()
	}
	if c.remoteTimeout <= 0 {
		c.remoteTimeout = DefaultRemoteTimeout
	}
	return c
}

// remote derives the context for one remote store call.
func (c *core) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.remoteTimeout)
}

func (c *core) get(ctx context.Context, userID string) (*models.UserRecord, error) {
	rctx, cancel := c.remote(ctx)
	defer cancel()
	return c.records.Get(rctx, userID)
}

// population reads the global install counter and remembers it locally so
// status reads can still report progress while the store is unreachable.
func (c *core) population(ctx context.Context) (uint64, error) {
	rctx, cancel := c.remote(ctx)
	defer cancel()

	n, err := c.records.ReadCounter(rctx, records.TotalInstallsCounter)
	if err != nil {
		return 0, err
	}
	if err := cache.SetJSON(ctx, c.cache, populationKey, n); err != nil {
		c.log.Warn(ctx, "failed to cache population", "error", err)
	}
	return n, nil
}

// settle runs the resolver for u and returns the locked and current tier
// to store.
//
// Linked users are frozen: a resolution below their locked tier is reported
// as a tier invariant violation and not applied.
func (c *core) settle(ctx context.Context, u *models.UserRecord, population uint64) (tier.Tier, tier.Tier) {
	attrs := u.Attributes()
	resolved := c.policy.Resolve(attrs, population)

	if !u.HasAccount {
		return c.policy.Locked(attrs, population), resolved
	}
	if u.LockedTier.Valid() && resolved < u.LockedTier {
		c.metrics.invariantViolations.Inc()
		c.log.Error(ctx, "resolution would demote a linked user, keeping locked tier",
			"user_id", u.ID,
			"locked_tier", u.LockedTier.String(),
			"resolved_tier", resolved.String(),
			"population", population,
		)
		return u.LockedTier, u.LockedTier
	}
	return resolved, resolved
}

// retier re-resolves u in place. It returns the tier fields to merge into
// the pending write and the previous current tier.
func (c *core) retier(ctx context.Context, u *models.UserRecord, population uint64) (records.Fields, tier.Tier) {
	old := u.CurrentTier
	u.LockedTier, u.CurrentTier = c.settle(ctx, u, population)
	return records.Tiers(u.LockedTier, u.CurrentTier), old
}

// save merge-writes fields and mirrors the whole record to the local cache.
// Cache failures are logged: the remote store is authoritative.
func (c *core) save(ctx context.Context, u *models.UserRecord, fields ...records.Fields) error {
	merged := make(records.Fields)
	for _, f := range fields {
		maps.Copy(merged, f)
	}

	rctx, cancel := c.remote(ctx)
	defer cancel()
	if err := c.records.MergeWrite(rctx, u.ID, merged); err != nil {
		return err
	}
	c.mirror(ctx, u)
	return nil
}

func (c *core) mirror(ctx context.Context, u *models.UserRecord) {
	if err := cache.SetJSON(context.WithoutCancel(ctx), c.cache, recordKey(u.ID), u); err != nil {
		c.log.Warn(ctx, "failed to mirror record", "user_id", u.ID, "error", err)
	}
}

// emit publishes a tier change when the current tier moved.
func (c *core) emit(ctx context.Context, userID string, old, new tier.Tier, reason string) {
	if old == new {
		return
	}
	c.metrics.tierChanges.WithLabelValues(reason, direction(old, new)).Inc()

	ev := TierChanged{UserID: userID, OldTier: old, NewTier: new, Reason: reason, At: c.clock.Now().UTC()}
	if err := c.notifier.NotifyTierChanged(ctx, ev); err != nil {
		c.log.Warn(ctx, "tier change notification failed", "user_id", userID, "reason", reason, "error", err)
	}
}

func direction(old, new tier.Tier) string {
	if new > old {
		return "up"
	}
	return "down"
}

const populationKey = "population"

func recordKey(userID string) string { return "record/" + userID }

func installKey(installationID string) string { return "install/" + installationID }

func pendingKey(installationID string) string { return "install/" + installationID + "/pending" }

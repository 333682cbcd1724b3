package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dmitrijs2005/tiergate/internal/logging"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/tierchanges"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryNotifier(t *testing.T) {
	repo := tierchanges.NewMemoryRepository()
	n := NewHistoryNotifier(repo)
	ctx := context.Background()

	require.NoError(t, n.NotifyTierChanged(ctx, TierChanged{
		UserID: "u1", OldTier: tier.Tier3, NewTier: tier.Tier4, Reason: models.ReasonReferral, At: sunday,
	}))

	got, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.TierChange{
		UserID: "u1", OldTier: tier.Tier3, NewTier: tier.Tier4, Reason: models.ReasonReferral, ChangedAt: sunday,
	}, got[0])
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewJSONLogger(&buf, slog.LevelInfo))

	require.NoError(t, n.NotifyTierChanged(context.Background(), TierChanged{
		UserID: "u1", OldTier: tier.Tier5, NewTier: tier.Tier4, Reason: models.ReasonHeartbeat,
	}))

	out := buf.String()
	assert.Contains(t, out, `"new_tier":"tier-4"`)
	assert.Contains(t, out, `"reason":"heartbeat"`)
}

func TestMultiNotifier_CallsAllAndCombinesErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	calls := 0
	failing := func(err error) Notifier {
		return NotifierFunc(func(context.Context, TierChanged) error {
			calls++
			return err
		})
	}

	m := MultiNotifier{failing(errA), failing(nil), failing(errB)}
	err := m.NotifyTierChanged(context.Background(), TierChanged{})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestEmit_NotifierFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	d := env.deps()
	d.Notifier = NotifierFunc(func(context.Context, TierChanged) error { return errors.New("down") })

	u := earlyAdopter("u1")
	u.ProfileComplete = false
	u.CurrentTier = tier.Tier2
	env.seed(t, u)

	got, err := NewProfiles(d).Complete(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.Tier3, got.CurrentTier)
}

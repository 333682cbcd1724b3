package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestRecordHeartbeat_SevenDaysUnlocksTier5AndGapDropsIt(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	s := NewEngagement(env.deps())
	ctx := context.Background()

	u := earlyAdopter("u1")
	u.ReferralCount = 30
	u.CurrentTier = tier.Tier4
	env.seed(t, u)

	for i := 0; i < 7; i++ {
		if i > 0 {
			env.clock.Advance(day)
		}
		got, err := s.RecordHeartbeat(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, i+1, got.WeeklyEngagement.Len())

		want := tier.Tier4
		if i == 6 {
			want = tier.Tier5
		}
		require.Equal(t, want, got.CurrentTier, "after heartbeat %d", i+1)
	}

	stored := env.load(t, "u1")
	assert.Equal(t, models.Engagement{0, 1, 2, 3, 4, 5, 6}, stored.WeeklyEngagement)
	assert.Equal(t, tier.Tier5, stored.CurrentTier)

	// Skip Sunday: Monday is already in the window, so the oldest entry is
	// evicted and Monday moves to the end.
	env.clock.Advance(2 * day)
	got, err := s.RecordHeartbeat(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Engagement{2, 3, 4, 5, 6, 1}, got.WeeklyEngagement)
	assert.Equal(t, tier.Tier4, got.CurrentTier)

	events := env.tierEvents()
	require.Len(t, events, 2)
	assert.Equal(t, TierChanged{UserID: "u1", OldTier: tier.Tier4, NewTier: tier.Tier5, Reason: models.ReasonHeartbeat, At: sunday.Add(6 * day)}, events[0])
	assert.Equal(t, tier.Tier5, events[1].OldTier)
	assert.Equal(t, tier.Tier4, events[1].NewTier)
}

func TestRecordHeartbeat_SameDayIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	s := NewEngagement(env.deps())
	ctx := context.Background()
	env.seed(t, earlyAdopter("u1"))

	first, err := s.RecordHeartbeat(ctx, "u1")
	require.NoError(t, err)

	env.clock.Advance(3 * time.Hour)
	second, err := s.RecordHeartbeat(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first.WeeklyEngagement, second.WeeklyEngagement)
	assert.Equal(t, sunday, env.load(t, "u1").LastActiveAt)
}

func TestRecordHeartbeat_ConsecutiveDaysKeepFullWindow(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	s := NewEngagement(env.deps())
	ctx := context.Background()

	u := earlyAdopter("u1")
	u.ReferralCount = 30
	u.WeeklyEngagement = models.Engagement{0, 1, 2, 3, 4, 5, 6}
	u.CurrentTier = tier.Tier5
	env.seed(t, u)

	for i := 0; i < 10; i++ {
		got, err := s.RecordHeartbeat(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 7, got.WeeklyEngagement.Len())
		require.Equal(t, tier.Tier5, got.CurrentTier)
		env.clock.Advance(day)
	}
	assert.Empty(t, env.tierEvents())
}

func TestRecordHeartbeat_Errors(t *testing.T) {
	env := newTestEnv(t)
	s := NewEngagement(env.deps())
	ctx := context.Background()

	_, err := s.RecordHeartbeat(ctx, "ghost")
	require.ErrorIs(t, err, common.ErrRecordNotFound)

	env.seed(t, earlyAdopter("u1"))
	env.store.Fail = unavailable()
	_, err = s.RecordHeartbeat(ctx, "u1")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
}

func TestDecayScenario_LinkPinsTier5(t *testing.T) {
	env := newTestEnv(t)
	engagement := NewEngagement(env.deps())
	accounts := NewAccounts(env.deps(), testVerifier())
	ctx := context.Background()

	u := earlyAdopter("ea")
	u.ReferralCount = 30
	u.WeeklyEngagement = models.Engagement{0, 1, 2, 3, 4, 5, 6}
	u.CurrentTier = tier.Tier5
	env.seed(t, u)

	env.setPopulation(t, 105_000)
	got, err := engagement.RecordHeartbeat(ctx, "ea")
	require.NoError(t, err)
	assert.Equal(t, tier.Tier5, got.CurrentTier, "first decay threshold not crossed")

	env.setPopulation(t, 115_000)
	env.clock.Advance(day)
	got, err = engagement.RecordHeartbeat(ctx, "ea")
	require.NoError(t, err)
	assert.Equal(t, tier.Tier4, got.CurrentTier)
	assert.Equal(t, tier.Tier4, got.LockedTier)

	linked, err := accounts.LinkAccount(ctx, "ea", testCredential(t, "idp-ea"))
	require.NoError(t, err)
	assert.Equal(t, tier.Tier5, linked.CurrentTier)
	assert.Equal(t, tier.Tier5, linked.LockedTier)

	env.setPopulation(t, 5_000_000)
	env.clock.Advance(day)
	got, err = engagement.RecordHeartbeat(ctx, "ea")
	require.NoError(t, err)
	assert.Equal(t, tier.Tier5, got.CurrentTier)
	assert.Equal(t, tier.Tier5, got.LockedTier)

	reasons := make([]string, 0)
	for _, ev := range env.tierEvents() {
		reasons = append(reasons, ev.Reason)
	}
	assert.Equal(t, []string{models.ReasonHeartbeat, models.ReasonAccountLinked}, reasons)
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/auth"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identitySecret = []byte("identity-secret")

func testVerifier() auth.Verifier {
	return auth.NewJWTVerifier(identitySecret, "")
}

func testCredential(t *testing.T, identityID string) string {
	t.Helper()
	c, err := auth.IssueCredential(identityID, "", identitySecret, time.Hour)
	require.NoError(t, err)
	return c
}

func TestLinkAccount(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 200_000)
	s := NewAccounts(env.deps(), testVerifier())
	ctx := context.Background()

	env.seed(t, &models.UserRecord{
		ID: "u1", UserNumber: 150_000, ProfileComplete: true, ReferralCount: 30,
		LockedTier: tier.Tier1, CurrentTier: tier.Tier3,
	})

	got, err := s.LinkAccount(ctx, "u1", testCredential(t, "idp-1"))
	require.NoError(t, err)
	assert.True(t, got.HasAccount)
	assert.Equal(t, "idp-1", got.IdentityID)
	require.NotNil(t, got.AccountLinkedAt)
	assert.Equal(t, sunday, *got.AccountLinkedAt)
	assert.Equal(t, tier.Tier4, got.CurrentTier, "growth phase grants tier 4 to linked users")
	assert.Equal(t, tier.Tier4, got.LockedTier)

	stored := env.load(t, "u1")
	assert.True(t, stored.HasAccount)
	assert.Equal(t, tier.Tier4, stored.CurrentTier)

	id, err := env.ids.FindByIdentity(ctx, "idp-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, models.ProviderAccount, id.Provider)

	again, err := s.LinkAccount(ctx, "u1", testCredential(t, "idp-2"))
	require.NoError(t, err)
	assert.Equal(t, "idp-1", again.IdentityID)
	assert.Len(t, env.tierEvents(), 1)
}

func TestLinkAccount_InvalidCredential(t *testing.T) {
	env := newTestEnv(t)
	s := NewAccounts(env.deps(), testVerifier())
	env.seed(t, earlyAdopter("u1"))

	_, err := s.LinkAccount(context.Background(), "u1", "not-a-token")
	require.ErrorIs(t, err, common.ErrInvalidCredential)
	assert.False(t, env.load(t, "u1").HasAccount)
	assert.Zero(t, env.ids.Len())
}

func TestWatch(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	s := NewAccounts(env.deps(), testVerifier())
	env.seed(t, earlyAdopter("u1"))
	env.seed(t, earlyAdopter("u2"))

	events := make(chan auth.Event, 4)
	events <- auth.Event{Kind: auth.SignIn, UserID: "u1", Credential: testCredential(t, "idp-1")}
	events <- auth.Event{Kind: auth.SignIn, UserID: "u2", Credential: "garbage"}
	events <- auth.Event{Kind: auth.SignOut, UserID: "u1"}
	close(events)

	require.NoError(t, s.Watch(context.Background(), events))

	assert.True(t, env.load(t, "u1").HasAccount, "sign-out never unlinks")
	assert.False(t, env.load(t, "u2").HasAccount)
}

func TestWatch_StopsOnContextDone(t *testing.T) {
	env := newTestEnv(t)
	s := NewAccounts(env.deps(), testVerifier())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Watch(ctx, make(chan auth.Event)))
}

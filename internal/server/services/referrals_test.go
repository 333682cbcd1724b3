package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// codeOracle answers referral code lookups from a set instead of scanning
// records.
type codeOracle struct {
	records.Store
	taken map[string]struct{}
}

func (o *codeOracle) QueryByField(_ context.Context, _ records.Field, value any) ([]*models.UserRecord, error) {
	if _, ok := o.taken[value.(string)]; ok {
		return []*models.UserRecord{{}}, nil
	}
	return nil, nil
}

func TestGenerateCode_TenThousandUnique(t *testing.T) {
	env := newTestEnv(t)
	oracle := &codeOracle{Store: env.store, taken: make(map[string]struct{})}
	d := env.deps()
	d.Records = oracle
	s := NewReferrals(d, 0)
	ctx := context.Background()

	for i := 0; i < 10_000; i++ {
		code, err := s.GenerateCode(ctx, "a1b2c3d4-0000")
		require.NoError(t, err)
		_, dup := oracle.taken[code]
		require.False(t, dup, "duplicate code %s at call %d", code, i)
		oracle.taken[code] = struct{}{}
	}
}

func TestGenerateCode_RetriesWithFreshSuffix(t *testing.T) {
	env := newTestEnv(t)
	s := NewReferrals(env.deps(), 5)
	env.seed(t, &models.UserRecord{ID: "owner", ReferralCode: "AB12-AAAAAAAA"})

	suffixes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	calls := 0
	s.randSuffix = func() (string, error) {
		v := suffixes[calls]
		calls++
		return v, nil
	}

	code, err := s.GenerateCode(context.Background(), "ab-12cd")
	require.NoError(t, err)
	assert.Equal(t, "AB12-BBBBBBBB", code)
	assert.Equal(t, 3, calls)
}

func TestGenerateCode_Exhausted(t *testing.T) {
	env := newTestEnv(t)
	s := NewReferrals(env.deps(), 3)
	env.seed(t, &models.UserRecord{ID: "owner", ReferralCode: "AB12-AAAAAAAA"})

	calls := 0
	s.randSuffix = func() (string, error) {
		calls++
		return "AAAAAAAA", nil
	}

	_, err := s.GenerateCode(context.Background(), "ab12")
	require.ErrorIs(t, err, common.ErrCodeGenerationExhausted)
	assert.Equal(t, 3, calls)
}

func TestGenerateCode_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.store.Fail = unavailable()
	_, err := NewReferrals(env.deps(), 0).GenerateCode(context.Background(), "ab12")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
}

func TestCodePrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a1b2c3d4-9f", "A1B2"},
		{"x", "XXXX"},
		{"é-9", "9XXX"},
		{"", "XXXX"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codePrefix(tt.in), tt.in)
	}
}

func TestAttributeReferral_ThirtiethReferralUnlocksTier4(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	s := NewReferrals(env.deps(), 0)
	ctx := context.Background()

	env.seed(t, earlyAdopter("ref"))
	for i := 1; i <= 30; i++ {
		env.seed(t, &models.UserRecord{ID: fmt.Sprintf("new-%02d", i), UserNumber: uint64(1000 + i)})
	}

	for i := 1; i <= 30; i++ {
		att, err := s.AttributeReferral(ctx, " code-ref ", fmt.Sprintf("new-%02d", i))
		require.NoError(t, err)
		require.True(t, att.Accepted)
		require.Equal(t, "ref", att.ReferrerID)
		require.Equal(t, uint32(i), att.ReferralCount)

		want := tier.Tier3
		if i == 30 {
			want = tier.Tier4
		}
		require.Equal(t, want, att.NewTier, "after referral %d", i)
		require.Equal(t, want, env.load(t, "ref").CurrentTier)
	}

	referred := env.load(t, "new-07")
	assert.Equal(t, "CODE-REF", referred.ReferredBy)
	assert.True(t, referred.ReferralCredited)

	events := env.tierEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.ReasonReferral, events[0].Reason)
	assert.Equal(t, tier.Tier3, events[0].OldTier)
	assert.Equal(t, tier.Tier4, events[0].NewTier)
}

func TestAttributeReferral_Drops(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	s := NewReferrals(env.deps(), 0)
	ctx := context.Background()

	env.seed(t, earlyAdopter("ref"))
	env.seed(t, &models.UserRecord{ID: "fresh"})
	env.seed(t, &models.UserRecord{ID: "taken", ReferredBy: "someone"})

	tests := []struct {
		name, code, user, reason string
	}{
		{"empty code", "  ", "fresh", DropEmptyCode},
		{"unknown code", "NOPE-NOPE", "fresh", DropUnknownCode},
		{"self referral", "CODE-REF", "ref", DropSelfReferral},
		{"already referred", "CODE-REF", "taken", DropAlreadyReferred},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := s.AttributeReferral(ctx, tt.code, tt.user)
			require.NoError(t, err)
			assert.False(t, att.Accepted)
			assert.Equal(t, tt.reason, att.Reason)
			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.referralsDropped.WithLabelValues(tt.reason)))
		})
	}

	assert.Zero(t, env.load(t, "ref").ReferralCount)
	assert.Empty(t, env.load(t, "fresh").ReferredBy)
	assert.Empty(t, env.tierEvents())
}

func TestAttributeReferral_UnknownNewUser(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, earlyAdopter("ref"))
	_, err := NewReferrals(env.deps(), 0).AttributeReferral(context.Background(), "CODE-REF", "ghost")
	require.ErrorIs(t, err, common.ErrRecordNotFound)
}

func TestAttributeReferral_RetryAfterIncrementFailure(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	d := env.deps()
	d.Records = &flakyStore{Store: env.store, referralErrs: []error{unavailable()}}
	s := NewReferrals(d, 0)
	ctx := context.Background()

	env.seed(t, earlyAdopter("ref"))
	env.seed(t, &models.UserRecord{ID: "newbie", UserNumber: 1001})

	_, err := s.AttributeReferral(ctx, "CODE-REF", "newbie")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)

	newbie := env.load(t, "newbie")
	assert.Equal(t, "CODE-REF", newbie.ReferredBy)
	assert.False(t, newbie.ReferralCredited)
	assert.Zero(t, env.load(t, "ref").ReferralCount)

	att, err := s.AttributeReferral(ctx, "code-ref", "newbie")
	require.NoError(t, err)
	require.True(t, att.Accepted)
	assert.Equal(t, uint32(1), att.ReferralCount)
	assert.True(t, env.load(t, "newbie").ReferralCredited)

	att, err = s.AttributeReferral(ctx, "CODE-REF", "newbie")
	require.NoError(t, err)
	assert.Equal(t, DropAlreadyReferred, att.Reason)
	assert.Equal(t, uint32(1), env.load(t, "ref").ReferralCount)
}

func TestAttributeReferral_ClaimWriteFails(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	d := env.deps()
	d.Records = &flakyStore{Store: env.store, mergeErrs: []error{unavailable()}}
	s := NewReferrals(d, 0)
	ctx := context.Background()

	env.seed(t, earlyAdopter("ref"))
	env.seed(t, &models.UserRecord{ID: "newbie", UserNumber: 1001})

	_, err := s.AttributeReferral(ctx, "CODE-REF", "newbie")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.Empty(t, env.load(t, "newbie").ReferredBy)
	assert.Zero(t, env.load(t, "ref").ReferralCount)

	att, err := s.AttributeReferral(ctx, "CODE-REF", "newbie")
	require.NoError(t, err)
	require.True(t, att.Accepted)
	assert.Equal(t, uint32(1), env.load(t, "ref").ReferralCount)
}

func TestAttributeReferral_CreditMarkFails(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	d := env.deps()
	d.Records = &flakyStore{Store: env.store, mergeErrs: []error{nil, unavailable()}}
	s := NewReferrals(d, 0)

	env.seed(t, earlyAdopter("ref"))
	env.seed(t, &models.UserRecord{ID: "newbie", UserNumber: 1001})

	_, err := s.AttributeReferral(context.Background(), "CODE-REF", "newbie")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)

	newbie := env.load(t, "newbie")
	assert.Equal(t, "CODE-REF", newbie.ReferredBy)
	assert.False(t, newbie.ReferralCredited)
	assert.Equal(t, uint32(1), env.load(t, "ref").ReferralCount)
	assert.Empty(t, env.tierEvents())
}

func TestAttributeReferral_PendingClaimForOtherCode(t *testing.T) {
	env := newTestEnv(t)
	env.setPopulation(t, 50_000)
	s := NewReferrals(env.deps(), 0)

	env.seed(t, earlyAdopter("ref"))
	env.seed(t, earlyAdopter("other"))
	env.seed(t, &models.UserRecord{ID: "newbie", ReferredBy: "CODE-OTHER"})

	att, err := s.AttributeReferral(context.Background(), "CODE-REF", "newbie")
	require.NoError(t, err)
	assert.Equal(t, DropAlreadyReferred, att.Reason)
	assert.Zero(t, env.load(t, "ref").ReferralCount)
}

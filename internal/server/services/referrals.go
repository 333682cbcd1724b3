package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/tier"
)

const (
	DefaultCodeAttempts = 5
	codePrefixLen       = 4
	codeSuffixLen       = 8
)

// Reasons a referral attribution is dropped.
const (
	DropEmptyCode       = "empty_code"
	DropUnknownCode     = "unknown_code"
	DropSelfReferral    = "self_referral"
	DropAlreadyReferred = "already_referred"
)

// Attribution describes the outcome of AttributeReferral.
type Attribution struct {
	Accepted      bool
	Reason        string
	ReferrerID    string
	ReferralCount uint32
	OldTier       tier.Tier
	NewTier       tier.Tier
}

// Referrals generates referral codes and credits referrers.
type Referrals struct {
	core
	attempts   int
	randSuffix func() (string, error)
}

func NewReferrals(d Deps, attempts int) *Referrals {
	if attempts <= 0 {
		attempts = DefaultCodeAttempts
	}
	return &Referrals{
		core:     newCore(d, "referrals"),
		attempts: attempts,
		randSuffix: func() (string, error) {
			return common.MakeRandCode(codeSuffixLen)
		},
	}
}

// GenerateCode returns a referral code no live record uses. Every attempt
// draws a fresh suffix; after the configured number of collisions it gives
// up with common.ErrCodeGenerationExhausted.
func (s *Referrals) GenerateCode(ctx context.Context, userID string) (string, error) {
	prefix := codePrefix(userID)

	for i := 0; i < s.attempts; i++ {
		suffix, err := s.randSuffix()
		if err != nil {
			return "", fmt.Errorf("generate referral suffix: %w", err)
		}
		code := prefix + "-" + suffix

		rctx, cancel := s.remote(ctx)
		owners, err := s.records.QueryByField(rctx, records.FieldReferralCode, code)
		cancel()
		if err != nil {
			return "", err
		}
		if len(owners) == 0 {
			return code, nil
		}
		s.log.Debug(ctx, "referral code collision", "attempt", i+1)
	}

	return "", common.ErrCodeGenerationExhausted
}

func codePrefix(userID string) string {
	var b strings.Builder
	for _, r := range userID {
		if b.Len() == codePrefixLen {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	for b.Len() < codePrefixLen {
		b.WriteByte('X')
	}
	return b.String()
}

// NormalizeCode canonicalises user input before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AttributeReferral credits the owner of code with referring newUserID.
//
// Referrals that cannot be attributed are dropped with a log line and a nil
// error so that they never fail the new user's signup.
//
// The code is claimed on the new user first, then the referrer's count is
// incremented, then the claim is marked credited. A call that failed with a
// retryable error after the claim resumes from there when retried with the
// same code.
func (s *Referrals) AttributeReferral(ctx context.Context, code, newUserID string) (*Attribution, error) {
	code = NormalizeCode(code)
	if code == "" {
		return s.drop(ctx, DropEmptyCode, newUserID), nil
	}

	newUser, err := s.get(ctx, newUserID)
	if err != nil {
		return nil, err
	}
	if newUser.ReferralCredited || (newUser.ReferredBy != "" && newUser.ReferredBy != code) {
		return s.drop(ctx, DropAlreadyReferred, newUserID), nil
	}

	rctx, cancel := s.remote(ctx)
	owners, err := s.records.QueryByField(rctx, records.FieldReferralCode, code)
	cancel()
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return s.drop(ctx, DropUnknownCode, newUserID), nil
	}
	referrer := owners[0]
	if referrer.ID == newUserID {
		return s.drop(ctx, DropSelfReferral, newUserID), nil
	}

	if newUser.ReferredBy == "" {
		newUser.ReferredBy = code
		if err := s.save(ctx, newUser, records.Fields{records.FieldReferredBy: code}); err != nil {
			return nil, err
		}
	} else {
		s.log.Info(ctx, "resuming referral attribution", "user_id", newUserID, "code", code)
	}

	rctx, cancel = s.remote(ctx)
	count, err := s.records.IncrementReferralCount(rctx, referrer.ID)
	cancel()
	if err != nil {
		return nil, err
	}
	referrer.ReferralCount = count

	newUser.ReferralCredited = true
	if err := s.save(ctx, newUser, records.Fields{records.FieldReferralCredited: true}); err != nil {
		// The increment is not rolled back; a retry would credit twice.
		s.log.Error(ctx, "referral credited but not marked", "user_id", newUserID, "referrer_id", referrer.ID, "error", err)
		return nil, err
	}

	pop, err := s.population(ctx)
	if err != nil {
		return nil, err
	}

	oldLocked := referrer.LockedTier
	fields, old := s.retier(ctx, referrer, pop)
	if referrer.CurrentTier != old || referrer.LockedTier != oldLocked {
		if err := s.save(ctx, referrer, fields); err != nil {
			return nil, err
		}
	} else {
		s.mirror(ctx, referrer)
	}

	s.log.Info(ctx, "referral attributed",
		"referrer_id", referrer.ID,
		"user_id", newUserID,
		"referral_count", count,
	)
	s.emit(ctx, referrer.ID, old, referrer.CurrentTier, models.ReasonReferral)

	return &Attribution{
		Accepted:      true,
		ReferrerID:    referrer.ID,
		ReferralCount: count,
		OldTier:       old,
		NewTier:       referrer.CurrentTier,
	}, nil
}

func (s *Referrals) drop(ctx context.Context, reason, userID string) *Attribution {
	s.metrics.referralsDropped.WithLabelValues(reason).Inc()
	s.log.Info(ctx, "referral dropped", "reason", reason, "user_id", userID)
	return &Attribution{Reason: reason}
}

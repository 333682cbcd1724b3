// Package records declares the remote state store holding user records and
// the global installation counter, with PostgreSQL and in-memory
// implementations.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/tier"
)

// TotalInstallsCounter is the id of the global installation counter.
const TotalInstallsCounter = "total_installs"

// Store is the remote state store. Implementations return
// common.ErrRecordNotFound for absent records and wrap connectivity failures
// and timeouts in common.ErrRemoteUnavailable.
type Store interface {
	// Get returns the record with the given id.
	Get(ctx context.Context, id string) (*models.UserRecord, error)

	// MergeWrite upserts the given fields, leaving all others untouched.
	MergeWrite(ctx context.Context, id string, fields Fields) error

	// IncrementCounter atomically increments a counter and returns the new value.
	IncrementCounter(ctx context.Context, counterID string) (uint64, error)

	// ReadCounter returns the current counter value, 0 if it was never written.
	ReadCounter(ctx context.Context, counterID string) (uint64, error)

	// WriteCounter stores value unless the counter is already higher.
	// Counters never decrease.
	WriteCounter(ctx context.Context, counterID string, value uint64) error

	// IncrementReferralCount atomically increments a record's referral count.
	IncrementReferralCount(ctx context.Context, id string) (uint32, error)

	// QueryByField returns every record whose field equals value. Only
	// indexed fields may be queried.
	QueryByField(ctx context.Context, field Field, value any) ([]*models.UserRecord, error)

	// ListStale returns up to limit records without an account whose last
	// activity is before the cutoff, oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*models.UserRecord, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error
}

// Field names a mergeable attribute of a user record. ReferralCount is
// deliberately absent: it only changes through IncrementReferralCount.
type Field string

const (
	FieldUserNumber       Field = "user_number"
	FieldIsEarlyAdopter   Field = "is_early_adopter"
	FieldHasAccount       Field = "has_account"
	FieldLockedTier       Field = "locked_tier"
	FieldCurrentTier      Field = "current_tier"
	FieldReferralCode     Field = "referral_code"
	FieldReferredBy       Field = "referred_by"
	FieldReferralCredited Field = "referral_credited"
	FieldProfileComplete  Field = "profile_complete"
	FieldWeeklyEngagement Field = "weekly_engagement"
	FieldIdentityID       Field = "identity_id"
	FieldInstalledAt      Field = "installed_at"
	FieldLastActiveAt     Field = "last_active_at"
	FieldAccountLinkedAt  Field = "account_linked_at"
)

// Queryable reports whether QueryByField accepts f.
func (f Field) Queryable() bool {
	switch f {
	case FieldReferralCode, FieldIdentityID, FieldUserNumber:
		return true
	}
	return false
}

// Fields is a partial record used for merge writes.
type Fields map[Field]any

// Snapshot returns every mergeable field of u.
func Snapshot(u *models.UserRecord) Fields {
	return Fields{
		FieldUserNumber:       u.UserNumber,
		FieldIsEarlyAdopter:   u.IsEarlyAdopter,
		FieldHasAccount:       u.HasAccount,
		FieldLockedTier:       u.LockedTier,
		FieldCurrentTier:      u.CurrentTier,
		FieldReferralCode:     u.ReferralCode,
		FieldReferredBy:       u.ReferredBy,
		FieldReferralCredited: u.ReferralCredited,
		FieldProfileComplete:  u.ProfileComplete,
		FieldWeeklyEngagement: u.WeeklyEngagement,
		FieldIdentityID:       u.IdentityID,
		FieldInstalledAt:      u.InstalledAt,
		FieldLastActiveAt:     u.LastActiveAt,
		FieldAccountLinkedAt:  u.AccountLinkedAt,
	}
}

// Tiers returns the two tier fields, the pair every resolution writes.
func Tiers(locked, current tier.Tier) Fields {
	return Fields{FieldLockedTier: locked, FieldCurrentTier: current}
}

// Apply copies the fields onto u. It is the inverse of Snapshot and is used
// by the in-memory store and by services keeping a local copy in sync.
func (f Fields) Apply(u *models.UserRecord) error {
	for field, v := range f {
		if err := applyField(u, field, v); err != nil {
			return err
		}
	}
	return nil
}

func applyField(u *models.UserRecord, field Field, v any) error {
	var ok bool
	switch field {
	case FieldUserNumber:
		u.UserNumber, ok = v.(uint64)
	case FieldIsEarlyAdopter:
		u.IsEarlyAdopter, ok = v.(bool)
	case FieldHasAccount:
		u.HasAccount, ok = v.(bool)
	case FieldLockedTier:
		u.LockedTier, ok = v.(tier.Tier)
	case FieldCurrentTier:
		u.CurrentTier, ok = v.(tier.Tier)
	case FieldReferralCode:
		u.ReferralCode, ok = v.(string)
	case FieldReferredBy:
		u.ReferredBy, ok = v.(string)
	case FieldReferralCredited:
		u.ReferralCredited, ok = v.(bool)
	case FieldProfileComplete:
		u.ProfileComplete, ok = v.(bool)
	case FieldWeeklyEngagement:
		var e models.Engagement
		e, ok = v.(models.Engagement)
		u.WeeklyEngagement = e.Clone()
	case FieldIdentityID:
		u.IdentityID, ok = v.(string)
	case FieldInstalledAt:
		u.InstalledAt, ok = v.(time.Time)
	case FieldLastActiveAt:
		u.LastActiveAt, ok = v.(time.Time)
	case FieldAccountLinkedAt:
		var t *time.Time
		t, ok = v.(*time.Time)
		u.AccountLinkedAt = t
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	if !ok {
		return fmt.Errorf("field %q: unexpected type %T", field, v)
	}
	return nil
}

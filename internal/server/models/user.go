// Package models defines server-side records persisted in the remote state
// store.
package models

import (
	"time"

	"github.com/dmitrijs2005/tiergate/internal/tier"
)

// UserRecord is the per-installation document. Tiers are never edited by
// hand: CurrentTier and LockedTier are always outputs of tier.Policy.
type UserRecord struct {
	ID             string `json:"id"`
	UserNumber     uint64 `json:"user_number"`
	IsEarlyAdopter bool   `json:"is_early_adopter"`
	HasAccount     bool   `json:"has_account"`

	LockedTier  tier.Tier `json:"locked_tier"`
	CurrentTier tier.Tier `json:"current_tier"`

	ReferralCode  string `json:"referral_code"`
	ReferralCount uint32 `json:"referral_count"`

	// ReferredBy is the normalized code presented at signup. It is written
	// before the referrer is credited; ReferralCredited marks the credit as
	// done so a retried attribution neither loses nor repeats it.
	ReferredBy       string `json:"referred_by,omitempty"`
	ReferralCredited bool   `json:"referral_credited,omitempty"`

	ProfileComplete  bool       `json:"profile_complete"`
	WeeklyEngagement Engagement `json:"weekly_engagement"`

	IdentityID      string     `json:"identity_id,omitempty"`
	InstalledAt     time.Time  `json:"installed_at"`
	LastActiveAt    time.Time  `json:"last_active_at"`
	AccountLinkedAt *time.Time `json:"account_linked_at,omitempty"`
}

// Attributes projects the record onto the resolver's inputs.
func (u *UserRecord) Attributes() tier.Attributes {
	return tier.Attributes{
		IsEarlyAdopter:  u.IsEarlyAdopter,
		HasAccount:      u.HasAccount,
		ProfileComplete: u.ProfileComplete,
		ReferralCount:   u.ReferralCount,
		EngagementDays:  u.WeeklyEngagement.Len(),
	}
}

// Clone returns a deep copy so callers can compare before and after states.
func (u *UserRecord) Clone() *UserRecord {
	c := *u
	c.WeeklyEngagement = u.WeeklyEngagement.Clone()
	if u.AccountLinkedAt != nil {
		t := *u.AccountLinkedAt
		c.AccountLinkedAt = &t
	}
	return &c
}

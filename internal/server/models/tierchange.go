package models

import (
	"time"

	"github.com/dmitrijs2005/tiergate/internal/tier"
)

// Reasons recorded with a tier change.
const (
	ReasonRegistered    = "registered"
	ReasonHeartbeat     = "heartbeat"
	ReasonReferral      = "referral"
	ReasonProfile       = "profile_complete"
	ReasonAccountLinked = "account_linked"
)

// TierChange is one transition of a user's current tier.
type TierChange struct {
	UserID    string
	OldTier   tier.Tier
	NewTier   tier.Tier
	Reason    string
	ChangedAt time.Time
}

package client

import (
	"context"

	"github.com/dmitrijs2005/tiergate/internal/tier"
)

// Registration is what the server returns for an installation.
type Registration struct {
	UserID         string
	UserNumber     uint64
	IsEarlyAdopter bool
	ReferralCode   string
	Tier           tier.Tier
	Degraded       bool
	AccessToken    string
}

// Standing is the user's tier state after a mutating call.
type Standing struct {
	Tier           tier.Tier
	LockedTier     tier.Tier
	HasAccount     bool
	EngagementDays int
}

type Attribution struct {
	Accepted   bool
	Reason     string
	ReferrerID string
}

type Progress struct {
	ProfileComplete      bool
	ReferralCount        uint64
	ReferralTarget       uint64
	EngagementDays       int
	EngagementTarget     int
	Population           uint64
	Phase                string
	PhaseRequiresAccount bool
	NextDecayAt          uint64
	NextDecayTier        tier.Tier
}

type Status struct {
	UserID         string
	Tier           tier.Tier
	LockedTier     tier.Tier
	IsEarlyAdopter bool
	HasAccount     bool
	ReferralCode   string
	Stale          bool
	Progress       Progress
}

type Client interface {
	Close() error
	SetSession(installationID, accessToken string)
	AccessToken() string
	Register(ctx context.Context, installationID string) (*Registration, error)
	Heartbeat(ctx context.Context) (*Standing, error)
	CompleteProfile(ctx context.Context) (*Standing, error)
	LinkAccount(ctx context.Context, credential string) (*Standing, error)
	AttributeReferral(ctx context.Context, code string) (*Attribution, error)
	Status(ctx context.Context) (*Status, error)
	CurrentTier(ctx context.Context) (tier.Tier, error)
	Ping(ctx context.Context) error
}

package rpc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Payload keys.
const (
	FieldInstallationID = "installation_id"
	FieldUserID         = "user_id"
	FieldUserNumber     = "user_number"
	FieldEarlyAdopter   = "is_early_adopter"
	FieldHasAccount     = "has_account"
	FieldReferralCode   = "referral_code"
	FieldTier           = "tier"
	FieldLockedTier     = "locked_tier"
	FieldDegraded       = "degraded"
	FieldAccessToken    = "access_token"
	FieldCredential     = "credential"
	FieldCode           = "code"
	FieldAccepted       = "accepted"
	FieldReason         = "reason"
	FieldReferrerID     = "referrer_id"
	FieldStale          = "stale"
	FieldProgress       = "progress"
	FieldEventKind      = "kind"
	FieldStatus         = "status"

	FieldProfileComplete      = "profile_complete"
	FieldReferralCount        = "referral_count"
	FieldReferralTarget       = "referral_target"
	FieldEngagementDays       = "engagement_days"
	FieldEngagementTarget     = "engagement_target"
	FieldPopulation           = "population"
	FieldPhase                = "phase"
	FieldPhaseRequiresAccount = "phase_requires_account"
	FieldNextDecayAt          = "next_decay_at"
	FieldNextDecayTier        = "next_decay_tier"
)

// NewMessage builds a message from plain Go values. Numbers must fit a
// float64 exactly, which holds for every counter the service exposes.
func NewMessage(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	return s, nil
}

func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func Number(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func Uint(s *structpb.Struct, key string) uint64 {
	n := Number(s, key)
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func Struct(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

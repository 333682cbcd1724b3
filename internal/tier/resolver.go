package tier

import "errors"

const (
	// EarlyAdopterLimit is the size of the early-adopter cohort.
	EarlyAdopterLimit uint64 = 100_000
	// ReferralThreshold unlocks Tier4.
	ReferralThreshold uint32 = 30
	// EngagementDays unlocks Tier5: distinct weekdays with activity.
	EngagementDays = 7
)

// Attributes are the user properties the resolver reads.
type Attributes struct {
	IsEarlyAdopter  bool
	HasAccount      bool
	ProfileComplete bool
	ReferralCount   uint32
	EngagementDays  int
}

// Policy bundles the tables and thresholds used for resolution. Build it
// once at start-up and pass it to the services that need it.
type Policy struct {
	EarlyAdopterLimit uint64
	ReferralThreshold uint32
	EngagementDays    int
	Phases            PhaseTable
	Decay             DecaySchedule
}

// DefaultPolicy returns the shipped policy.
func DefaultPolicy() Policy {
	return Policy{
		EarlyAdopterLimit: EarlyAdopterLimit,
		ReferralThreshold: ReferralThreshold,
		EngagementDays:    EngagementDays,
		Phases:            DefaultPhases(),
		Decay:             DefaultDecay(),
	}
}

// Validate checks both tables.
func (p Policy) Validate() error {
	if p.EngagementDays < 1 || p.EngagementDays > 7 {
		return errors.New("engagement days must be within [1,7]")
	}
	if err := p.Phases.Validate(); err != nil {
		return err
	}
	return p.Decay.Validate()
}

// IsEarlyAdopter reports whether a sequence number belongs to the
// early-adopter cohort. Sequence numbers start at 1.
func (p Policy) IsEarlyAdopter(userNumber uint64) bool {
	return userNumber >= 1 && userNumber <= p.EarlyAdopterLimit
}

// Resolve returns the tier a user may access at the given population.
//
// The population-derived ceiling is combined with the unlock predicates:
// the result is the lower of the ceiling and the highest tier whose own
// predicate and all lower predicates hold. Early adopters with an account
// are pinned at Tier5 and skip the predicates.
func (p Policy) Resolve(a Attributes, population uint64) Tier {
	ceiling := p.Ceiling(a, population)
	if a.IsEarlyAdopter && a.HasAccount {
		return ceiling
	}
	return min(ceiling, p.Unlocked(a))
}

// Ceiling returns the population-derived ceiling alone.
//
// Early adopters are only ever evaluated against the decay schedule, never
// against the phase table, even once their number falls inside a phase.
func (p Policy) Ceiling(a Attributes, population uint64) Tier {
	switch {
	case a.IsEarlyAdopter && a.HasAccount:
		return Tier5
	case a.IsEarlyAdopter:
		return p.Decay.Ceiling(population)
	}

	phase, ok := p.Phases.Lookup(population)
	if !ok {
		return MinTier
	}
	if a.HasAccount && phase.AccountLinkedTier != NoTier {
		return phase.AccountLinkedTier
	}
	return phase.DefaultTier
}

// Unlocked returns the highest tier whose predicate chain holds.
func (p Policy) Unlocked(a Attributes) Tier {
	highest := MinTier
	for t := MinTier; t <= MaxTier; t++ {
		if !p.unlocks(t, a) {
			break
		}
		highest = t
	}
	return highest
}

func (p Policy) unlocks(t Tier, a Attributes) bool {
	switch t {
	case Tier1, Tier2:
		return true
	case Tier3:
		return a.ProfileComplete
	case Tier4:
		return a.ReferralCount >= p.ReferralThreshold
	case Tier5:
		return a.EngagementDays >= p.EngagementDays
	case NoTier:
		return false
	}
	return false
}

// Locked returns the floor a user keeps while its earning condition holds:
// the resolved tier once an account is linked, the current decay ceiling for
// unlinked early adopters, Tier1 for everyone else.
func (p Policy) Locked(a Attributes, population uint64) Tier {
	switch {
	case a.HasAccount:
		return p.Resolve(a, population)
	case a.IsEarlyAdopter:
		return p.Decay.Ceiling(population)
	}
	return MinTier
}

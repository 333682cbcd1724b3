package tier

import (
	"errors"
	"fmt"
	"math"
)

// PhaseName identifies a population phase. The set is closed: adding a phase
// means adding a constant here and a row to DefaultPhases.
type PhaseName string

const (
	PhaseGenesis   PhaseName = "genesis"
	PhaseGrowth    PhaseName = "growth"
	PhaseExpansion PhaseName = "expansion"
	PhaseMature    PhaseName = "mature"
)

// Phase maps an inclusive population range to tier ceilings for users
// outside the early-adopter cohort.
type Phase struct {
	Name PhaseName
	From uint64
	To   uint64

	DefaultTier Tier
	// AccountLinkedTier replaces DefaultTier for users with a linked
	// account. NoTier means the phase grants nothing extra for linking.
	AccountLinkedTier Tier
	// RequiresAccount is surfaced to the UI as "link an account to keep
	// full access in this phase". The resolver does not consult it.
	RequiresAccount bool
}

// Contains reports whether population falls inside [From, To].
func (p Phase) Contains(population uint64) bool {
	return population >= p.From && population <= p.To
}

// PhaseTable is ordered by From and covers [0, MaxUint64] without gaps.
type PhaseTable []Phase

// DefaultPhases is the shipped phase table. Default tiers never increase
// from one phase to the next.
func DefaultPhases() PhaseTable {
	return PhaseTable{
		{Name: PhaseGenesis, From: 0, To: 100_000, DefaultTier: Tier5},
		{Name: PhaseGrowth, From: 100_001, To: 500_000, DefaultTier: Tier3, AccountLinkedTier: Tier4},
		{Name: PhaseExpansion, From: 500_001, To: 1_000_000, DefaultTier: Tier2, AccountLinkedTier: Tier4, RequiresAccount: true},
		{Name: PhaseMature, From: 1_000_001, To: math.MaxUint64, DefaultTier: Tier1, AccountLinkedTier: Tier3, RequiresAccount: true},
	}
}

// Lookup returns the phase containing population.
func (pt PhaseTable) Lookup(population uint64) (Phase, bool) {
	for _, p := range pt {
		if p.Contains(population) {
			return p, true
		}
	}
	return Phase{}, false
}

// Validate checks ordering, coverage and tier ranges.
func (pt PhaseTable) Validate() error {
	if len(pt) == 0 {
		return errors.New("phase table is empty")
	}
	if pt[0].From != 0 {
		return fmt.Errorf("phase %q must start at 0, starts at %d", pt[0].Name, pt[0].From)
	}
	for i, p := range pt {
		if p.From > p.To {
			return fmt.Errorf("phase %q has inverted range [%d,%d]", p.Name, p.From, p.To)
		}
		if !p.DefaultTier.Valid() {
			return fmt.Errorf("phase %q has invalid default tier %d", p.Name, p.DefaultTier)
		}
		if p.AccountLinkedTier != NoTier && !p.AccountLinkedTier.Valid() {
			return fmt.Errorf("phase %q has invalid account-linked tier %d", p.Name, p.AccountLinkedTier)
		}
		if i > 0 && pt[i-1].To+1 != p.From {
			return fmt.Errorf("phase %q does not start right after %q", p.Name, pt[i-1].Name)
		}
	}
	if last := pt[len(pt)-1]; last.To != math.MaxUint64 {
		return fmt.Errorf("phase %q must extend to the maximum population", last.Name)
	}
	return nil
}

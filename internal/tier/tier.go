// Package tier holds the static eligibility tables and the pure resolver
// that maps a user's attributes and the live installation count to a
// feature tier.
//
// Nothing in this package performs I/O or returns errors: every input has a
// defined tier, so callers can re-derive a user's tier at any time and get
// the same answer for the same attributes.
package tier

import "fmt"

// Tier is a feature tier. The zero value NoTier means "not defined" and is
// never the result of a resolution.
type Tier uint8

const (
	NoTier Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
)

// MinTier and MaxTier bound every resolved value.
const (
	MinTier = Tier1
	MaxTier = Tier5
)

// Valid reports whether t is one of Tier1..Tier5.
func (t Tier) Valid() bool {
	return t >= MinTier && t <= MaxTier
}

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier-1"
	case Tier2:
		return "tier-2"
	case Tier3:
		return "tier-3"
	case Tier4:
		return "tier-4"
	case Tier5:
		return "tier-5"
	case NoTier:
		return "none"
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// Parse converts a stored numeric tier back into a Tier.
func Parse(v int64) (Tier, error) {
	if v < int64(MinTier) || v > int64(MaxTier) {
		return NoTier, fmt.Errorf("tier %d out of range [%d,%d]", v, MinTier, MaxTier)
	}
	return Tier(v), nil
}

package tier

import "fmt"

// DecayRule caps unlinked early adopters at CeilingTier once the population
// reaches AfterPopulation.
type DecayRule struct {
	AfterPopulation uint64
	CeilingTier     Tier
}

// DecaySchedule is ordered ascending by AfterPopulation. The last rule whose
// threshold has been reached applies.
type DecaySchedule []DecayRule

func DefaultDecay() DecaySchedule {
	return DecaySchedule{
		{AfterPopulation: 110_000, CeilingTier: Tier4},
		{AfterPopulation: 250_000, CeilingTier: Tier3},
		{AfterPopulation: 500_000, CeilingTier: Tier2},
	}
}

// Ceiling returns the ceiling for population, Tier5 before the first
// threshold.
func (ds DecaySchedule) Ceiling(population uint64) Tier {
	ceiling := Tier5
	for _, r := range ds {
		if r.AfterPopulation > population {
			break
		}
		ceiling = r.CeilingTier
	}
	return ceiling
}

// Next returns the first rule not yet reached.
func (ds DecaySchedule) Next(population uint64) (DecayRule, bool) {
	for _, r := range ds {
		if r.AfterPopulation > population {
			return r, true
		}
	}
	return DecayRule{}, false
}

// Validate checks that thresholds ascend and ceilings never rise.
func (ds DecaySchedule) Validate() error {
	prev := Tier5
	for i, r := range ds {
		if !r.CeilingTier.Valid() {
			return fmt.Errorf("decay rule %d has invalid ceiling %d", i, r.CeilingTier)
		}
		if i > 0 && ds[i-1].AfterPopulation >= r.AfterPopulation {
			return fmt.Errorf("decay rule %d is not ascending", i)
		}
		if r.CeilingTier > prev {
			return fmt.Errorf("decay rule %d raises the ceiling to %s", i, r.CeilingTier)
		}
		prev = r.CeilingTier
	}
	return nil
}

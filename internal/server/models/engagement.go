package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// MaxEngagementDays bounds the weekly engagement window.
const MaxEngagementDays = 7

// Engagement is an ordered set of weekday indices (0 = Sunday), oldest
// first, holding at most seven entries without duplicates.
//
// The window slides by count, not by calendar: once full, each new day
// evicts the oldest entry regardless of how long ago it was recorded.
type Engagement []uint8

// DayIndex returns the weekday index for t in loc.
func DayIndex(t time.Time, loc *time.Location) uint8 {
	return uint8(t.In(loc).Weekday())
}

func (e Engagement) Len() int { return len(e) }

func (e Engagement) Contains(day uint8) bool {
	return slices.Contains(e, day)
}

func (e Engagement) Clone() Engagement {
	if e == nil {
		return nil
	}
	return slices.Clone(e)
}

// Record returns the set after activity on day. When the set is full the
// oldest entry is evicted first; a day already present moves to the most
// recent position.
func (e Engagement) Record(day uint8) Engagement {
	out := e.Clone()
	if len(out) >= MaxEngagementDays {
		out = out[1:]
	}
	if i := slices.Index(out, day); i >= 0 {
		out = slices.Delete(out, i, i+1)
	}
	return append(out, day)
}

// Validate checks the size and uniqueness invariants.
func (e Engagement) Validate() error {
	if len(e) > MaxEngagementDays {
		return fmt.Errorf("engagement holds %d days, max %d", len(e), MaxEngagementDays)
	}
	seen := make(map[uint8]struct{}, len(e))
	for _, d := range e {
		if d > 6 {
			return fmt.Errorf("day index %d out of range", d)
		}
		if _, ok := seen[d]; ok {
			return fmt.Errorf("duplicate day index %d", d)
		}
		seen[d] = struct{}{}
	}
	return nil
}

// MarshalJSON writes the days as a number array rather than base64.
func (e Engagement) MarshalJSON() ([]byte, error) {
	days := make([]int, len(e))
	for i, d := range e {
		days[i] = int(d)
	}
	return json.Marshal(days)
}

func (e *Engagement) UnmarshalJSON(b []byte) error {
	var days []int
	if err := json.Unmarshal(b, &days); err != nil {
		return err
	}
	if days == nil {
		*e = nil
		return nil
	}
	out := make(Engagement, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return fmt.Errorf("day index %d out of range", d)
		}
		out = append(out, uint8(d))
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

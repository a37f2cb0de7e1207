/*
quota.go - Break quota computation for the current reset window

PURPOSE:

	Answers "can this user take another break of this type right now?" and
	"what remains?". Usage is a pure function of (allowance, break entries in
	window, now); nothing here touches storage.

ENFORCEMENT:

	An allowance enforces count when MaxCount > 0 and minutes when
	MaxMinutes > 0, independently. A break type is available only when every
	enforced dimension has something remaining. Disabled types are excluded
	from results entirely.

COUNTING:

	used_count is the number of entries of the type whose start falls in the
	window. used_minutes sums closed entries' durations plus now-start for a
	still-open entry, truncated to whole minutes.
*/
package engine

import "time"

// Usage reports quota consumption for one break type in the current window.
type Usage struct {
	BreakType        string
	MaxCount         int
	MaxMinutes       int
	UsedCount        int
	UsedMinutes      int
	RemainingCount   int
	RemainingMinutes int
	Window           Window
}

// Available reports whether another break of this type may start. Each
// dimension is checked only when the allowance enforces it.
func (u Usage) Available() bool {
	if u.MaxCount > 0 && u.RemainingCount <= 0 {
		return false
	}
	if u.MaxMinutes > 0 && u.RemainingMinutes <= 0 {
		return false
	}
	return true
}

// QuotaEngine computes usage from allowance configuration and historical
// break entries. It holds no state.
type QuotaEngine struct{}

// Usage computes consumption of one allowance given the user's break entries
// of that type. Entries outside the window are ignored; entries of other
// types must not be passed in.
func (QuotaEngine) Usage(allowance BreakAllowance, entries []BreakEntry, window Window, now time.Time) Usage {
	u := Usage{
		BreakType:  allowance.BreakType,
		MaxCount:   allowance.MaxCount,
		MaxMinutes: allowance.MaxMinutes,
		Window:     window,
	}

	for _, b := range entries {
		if !window.Contains(b.StartAt) {
			continue
		}
		u.UsedCount++
		u.UsedMinutes += b.Minutes(now)
	}

	u.RemainingCount = clampNonNegative(allowance.MaxCount - u.UsedCount)
	u.RemainingMinutes = clampNonNegative(allowance.MaxMinutes - u.UsedMinutes)
	return u
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

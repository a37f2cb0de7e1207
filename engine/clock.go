package engine

import "time"

// =============================================================================
// CLOCK - Abstracts "now" so transitions and windows are testable
// =============================================================================

// Clock supplies the current instant. All state transitions and window
// computations go through it; tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// WorkDate returns the calendar date of t in the given location, formatted
// as YYYY-MM-DD. Used to stamp a session's work_date at clock-in.
func WorkDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

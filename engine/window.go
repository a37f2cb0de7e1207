/*
window.go - Reset-window computation for break quotas

PURPOSE:

	Quota usage is always measured against a window, not at a point in time.
	The window is determined by the organization's break_reset_mode:

	  daily:        [midnight today, midnight tomorrow) in org timezone
	  weekly_fixed: [most recent configured weekday 00:00, +7 days)
	  pay_period:   [epoch + k*period, epoch + (k+1)*period) enclosing now
	  rolling:      [now - window length, now), no fixed boundary

	Each mode has its own boundary function selected by a closed variant
	switch; usage always counts break entries whose start falls in [Start, End).
*/
package engine

import "time"

// ResetMode selects how quota windows recur.
type ResetMode string

const (
	ResetDaily       ResetMode = "daily"
	ResetWeeklyFixed ResetMode = "weekly_fixed"
	ResetPayPeriod   ResetMode = "pay_period"
	ResetRolling     ResetMode = "rolling"
)

// ValidResetMode reports whether s names a known reset mode.
func ValidResetMode(s string) bool {
	switch ResetMode(s) {
	case ResetDaily, ResetWeeklyFixed, ResetPayPeriod, ResetRolling:
		return true
	}
	return false
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowFor returns the reset window enclosing now, per the configured mode.
func (o OrgSettings) WindowFor(now time.Time) Window {
	loc := o.Location()

	switch o.ResetMode {
	case ResetWeeklyFixed:
		return o.weeklyWindow(now, loc)

	case ResetPayPeriod:
		return o.payPeriodWindow(now)

	case ResetRolling:
		length := o.RollingWindow
		if length <= 0 {
			length = 24 * time.Hour
		}
		return Window{Start: now.Add(-length), End: now}

	default: // ResetDaily or unset
		start := StartOfDay(now, loc)
		return Window{Start: start, End: start.AddDate(0, 0, 1)}
	}
}

func (o OrgSettings) weeklyWindow(now time.Time, loc *time.Location) Window {
	day := StartOfDay(now, loc)
	// Walk back to the most recent week-start boundary.
	offset := (int(day.Weekday()) - int(o.WeekStart) + 7) % 7
	start := day.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func (o OrgSettings) payPeriodWindow(now time.Time) Window {
	days := o.PeriodDays
	if days <= 0 {
		days = 14
	}
	period := time.Duration(days) * 24 * time.Hour
	epoch := o.PeriodEpoch

	// Periods extend backward from the epoch as well; floor toward -inf.
	diff := now.Sub(epoch)
	k := diff / period
	if diff < 0 && diff%period != 0 {
		k--
	}
	start := epoch.Add(k * period)
	return Window{Start: start, End: start.Add(period)}
}

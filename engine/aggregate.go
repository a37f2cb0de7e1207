/*
aggregate.go - Session, user and org summaries

PURPOSE:

	Turns raw timestamped entries into the numbers the dashboards show.
	Summaries of open sessions/breaks use "now" for the missing end, so they
	are live projections: recomputed on every read, never cached. Only a
	fully closed session has an idempotent summary.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSION SUMMARY - Volatile for open sessions
// =============================================================================

type SessionSummary struct {
	SessionID            SessionID
	UserID               UserID
	TotalDurationMinutes int
	TotalBreakMinutes    int
	CleanWorkMinutes     int
	BreakCounts          map[string]int
	ComputedAt           time.Time
}

// AggregationEngine computes summaries from loaded rows. It holds no state;
// every call is a pure function of (rows, now).
type AggregationEngine struct{}

// Summarize computes the summary of one session and its break entries.
// Clean work minutes are floored at zero so bookkeeping errors (overlapping
// breaks, breaks overrunning the session) never produce a negative figure.
func (AggregationEngine) Summarize(session WorkSession, breaks []BreakEntry, now time.Time) SessionSummary {
	end := now
	if session.ClockOutAt != nil {
		end = *session.ClockOutAt
	}

	total := int(end.Sub(session.ClockInAt) / time.Minute)
	if total < 0 {
		total = 0
	}

	breakMinutes := 0
	counts := make(map[string]int)
	for _, b := range breaks {
		breakMinutes += b.Minutes(now)
		counts[b.BreakType]++
	}

	clean := total - breakMinutes
	if clean < 0 {
		clean = 0
	}

	return SessionSummary{
		SessionID:            session.ID,
		UserID:               session.UserID,
		TotalDurationMinutes: total,
		TotalBreakMinutes:    breakMinutes,
		CleanWorkMinutes:     clean,
		BreakCounts:          counts,
		ComputedAt:           now,
	}
}

// =============================================================================
// USER STATS - Per-user rollup over a date range
// =============================================================================

type UserStats struct {
	UserID              UserID
	From                time.Time
	To                  time.Time
	TotalCalls          int
	TotalDepositsCount  int
	TotalDepositsAmount decimal.Decimal
	TotalBreakMinutes   int
	TotalSessions       int
}

// =============================================================================
// ORG KPIS - Live org-wide rollup, computed per read
// =============================================================================

type OrgKpis struct {
	TotalCalls          int
	TotalDepositsCount  int
	TotalDepositsAmount decimal.Decimal
	ActiveSessions      int
	OnBreakCount        int
	ComputedAt          time.Time
}

// SessionHistory is one closed-or-open session with its nested entry counts,
// as shown on the user's history page.
type SessionHistory struct {
	Session      WorkSession
	CallCount    int
	DepositCount int
	BreakCount   int
}

// LiveSession is one currently open session with its on-break status, as
// shown on the admin overview.
type LiveSession struct {
	Session    WorkSession
	FullName   string
	OnBreak    bool
	BreakType  string
	BreakSince *time.Time
}

/*
Package engine provides the core shift and break accounting engine.

PURPOSE:

	This package contains the domain types and algorithms for tracking work
	shifts: clocking in/out, taking typed breaks against per-type quotas, and
	turning raw timestamped entries into session/user/org summaries.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkSession: One continuous clock-in-to-clock-out period for a user
  - BreakEntry: A bounded, typed pause nested inside a session
  - CallEntry/DepositEntry: Append-only facts logged during a session
  - BreakAllowance/OrgSettings: Admin-mutable configuration read per operation

DESIGN PRINCIPLES:
 1. Invariants live in storage: at most one open session per user, at most
    one open break per session, both enforced by conditional inserts
 2. Precision: deposit amounts use decimal.Decimal, never float64
 3. Type safety: strong ID types prevent mixing session/break/user IDs
 4. Volatility: summaries of open sessions are functions of "now" and are
    recomputed on every read

SEE ALSO:
  - service.go: The accounting service orchestrating transitions
  - quota.go: Per-type break quota computation
  - aggregate.go: Session/user/org summaries
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type SessionID string
type BreakID string

// Role controls navigation and admin access. The engine trusts the role
// supplied by the identity collaborator.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleCSR   Role = "csr"
)

// =============================================================================
// PROFILE - Identity record referenced (not owned) by sessions and entries
// =============================================================================

type Profile struct {
	ID       UserID
	Username string
	FullName string
	Role     Role
	IsActive bool
}

// =============================================================================
// WORK SESSION - One clock-in-to-clock-out period
// =============================================================================

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// WorkSession is owned by the user it belongs to. Invariant: at most one
// session with status=open per user at any instant.
type WorkSession struct {
	ID         SessionID
	UserID     UserID
	WorkDate   string // calendar date of clock-in in org timezone (YYYY-MM-DD)
	ClockInAt  time.Time
	ClockOutAt *time.Time
	Status     SessionStatus
	Remarks    string
}

func (s WorkSession) IsOpen() bool { return s.Status == SessionOpen }

// =============================================================================
// BREAK ENTRY - A typed pause nested inside a session
// =============================================================================

// BreakEntry exists only while its session exists. Invariant: at most one
// entry with EndAt=nil per session, and entries only attach to open sessions.
type BreakEntry struct {
	ID        BreakID
	SessionID SessionID
	UserID    UserID // denormalized owner, used for quota window queries
	BreakType string
	StartAt   time.Time
	EndAt     *time.Time
	Notes     string
}

func (b BreakEntry) IsOpen() bool { return b.EndAt == nil }

// Minutes returns the break duration truncated to whole minutes. Open breaks
// are measured against "now".
func (b BreakEntry) Minutes(now time.Time) int {
	end := now
	if b.EndAt != nil {
		end = *b.EndAt
	}
	d := end.Sub(b.StartAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// =============================================================================
// CALL / DEPOSIT ENTRIES - Append-only facts consumed by aggregation
// =============================================================================

type CallEntry struct {
	ID         string
	SessionID  SessionID
	UserID     UserID
	Status     string
	Outcome    string
	Notes      string
	OccurredAt time.Time
}

type DepositEntry struct {
	ID         string
	SessionID  SessionID
	UserID     UserID
	Amount     decimal.Decimal
	Reference  string
	Notes      string
	OccurredAt time.Time
}

// CallOption is a configurable value for call status/outcome dropdowns.
type CallOption struct {
	ID        string
	Kind      CallOptionKind
	Value     string
	SortOrder int
	IsEnabled bool
}

type CallOptionKind string

const (
	CallOptionStatus  CallOptionKind = "status"
	CallOptionOutcome CallOptionKind = "outcome"
)

// =============================================================================
// CONFIGURATION - Admin-mutable, re-read on every operation
// =============================================================================

// BreakAllowance configures the quota for one break type. A zero MaxCount
// means count is not enforced; a zero MaxMinutes means minutes are not
// enforced. Disabled types are excluded from quota results entirely.
type BreakAllowance struct {
	BreakType  string
	MaxCount   int
	MaxMinutes int
	IsEnabled  bool
}

// OrgSettings holds the single organization's runtime configuration.
type OrgSettings struct {
	Timezone  string
	ResetMode ResetMode

	// weekly_fixed: which weekday starts the window
	WeekStart time.Weekday

	// pay_period: fixed-length periods anchored to an epoch date
	PeriodDays  int
	PeriodEpoch time.Time

	// rolling: trailing window length
	RollingWindow time.Duration
}

// Location resolves the configured timezone name. Unknown names fall back
// to UTC rather than failing every clocked operation.
func (o OrgSettings) Location() *time.Location {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultSettings matches the seed configuration of a fresh organization.
func DefaultSettings() OrgSettings {
	return OrgSettings{
		Timezone:      "UTC",
		ResetMode:     ResetDaily,
		WeekStart:     time.Monday,
		PeriodDays:    14,
		PeriodEpoch:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		RollingWindow: 24 * time.Hour,
	}
}

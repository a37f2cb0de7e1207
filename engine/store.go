/*
store.go - Persistence interfaces for the accounting engine

PURPOSE:

	Defines the boundary between the engine and the storage collaborator.
	Different implementations can use SQLite, PostgreSQL, or in-memory maps.

CONDITIONAL INSERTS:

	The two lifecycle invariants are enforced here, not by read-then-write in
	the service:
	- CreateSession must fail with ErrConflict if the user already has an
	  open session ("insert row iff no conflicting row exists").
	- CreateBreak must fail with ErrConflict if the session already has an
	  open break.
	The SQLite implementation backs these with partial unique indexes; the
	in-memory implementation checks under its lock.

TRANSACTIONS:

	WithTx serializes a multi-step decision against a consistent snapshot.
	The service uses it for quota enforcement at break start: read usage,
	decide, insert, with no lost update in between.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - engine/store: in-memory store for tests/dev
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSION STORE
// =============================================================================

type SessionStore interface {
	// CreateSession inserts a new open session. Fails with ErrConflict if
	// the user already has an open session.
	CreateSession(ctx context.Context, s WorkSession) error

	GetSession(ctx context.Context, id SessionID) (*WorkSession, error)

	// OpenSession returns the user's open session, or nil if none.
	OpenSession(ctx context.Context, userID UserID) (*WorkSession, error)

	// UpdateSession persists clock-out/remarks changes to an existing row.
	UpdateSession(ctx context.Context, s WorkSession) error

	// SessionsInRange returns the user's sessions whose clock-in falls in
	// [from, to), newest first.
	SessionsInRange(ctx context.Context, userID UserID, from, to time.Time) ([]WorkSession, error)

	// RecentSessions returns the user's most recent sessions, newest first.
	RecentSessions(ctx context.Context, userID UserID, limit int) ([]WorkSession, error)

	// OpenSessions returns all open sessions org-wide, newest first.
	OpenSessions(ctx context.Context) ([]WorkSession, error)
}

// =============================================================================
// BREAK STORE
// =============================================================================

type BreakStore interface {
	// CreateBreak inserts a new open break. Fails with ErrConflict if the
	// session already has an open break.
	CreateBreak(ctx context.Context, b BreakEntry) error

	GetBreak(ctx context.Context, id BreakID) (*BreakEntry, error)

	// UpdateBreak persists end/notes changes to an existing row.
	UpdateBreak(ctx context.Context, b BreakEntry) error

	// BreaksBySession returns all break entries of one session, oldest first.
	BreaksBySession(ctx context.Context, sessionID SessionID) ([]BreakEntry, error)

	// BreaksInWindow returns the user's entries of one type whose start
	// falls in [from, to).
	BreaksInWindow(ctx context.Context, userID UserID, breakType string, from, to time.Time) ([]BreakEntry, error)

	// OpenBreak returns the session's open break, or nil if none.
	OpenBreak(ctx context.Context, sessionID SessionID) (*BreakEntry, error)
}

// =============================================================================
// ENTRY STORE - Append-only call/deposit facts
// =============================================================================

type EntryStore interface {
	CreateCall(ctx context.Context, c CallEntry) error
	CreateDeposit(ctx context.Context, d DepositEntry) error

	// CountCalls counts a user's calls in [from, to). Empty userID counts
	// all users.
	CountCalls(ctx context.Context, userID UserID, from, to time.Time) (int, error)

	// SumDeposits returns count and total amount of deposits in [from, to).
	// Empty userID sums all users.
	SumDeposits(ctx context.Context, userID UserID, from, to time.Time) (int, decimal.Decimal, error)

	// CountBySession returns call/deposit/break counts for one session.
	CountBySession(ctx context.Context, sessionID SessionID) (calls, deposits, breaks int, err error)
}

// =============================================================================
// CONFIG STORE - Read-mostly, admin-mutable at runtime
// =============================================================================

type ConfigStore interface {
	// Allowances returns all break allowances, enabled or not.
	Allowances(ctx context.Context) ([]BreakAllowance, error)
	SaveAllowance(ctx context.Context, a BreakAllowance) error

	Settings(ctx context.Context) (OrgSettings, error)
	SaveSettings(ctx context.Context, s OrgSettings) error

	CallOptions(ctx context.Context, kind CallOptionKind) ([]CallOption, error)
	SaveCallOption(ctx context.Context, o CallOption) error
}

// =============================================================================
// PROFILE STORE
// =============================================================================

type ProfileStore interface {
	GetProfile(ctx context.Context, id UserID) (*Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// =============================================================================
// STORE - The full storage collaborator
// =============================================================================

type Store interface {
	SessionStore
	BreakStore
	EntryStore
	ConfigStore
	ProfileStore

	// WithTx executes fn against a consistent, serialized view. If fn
	// returns an error the changes are rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

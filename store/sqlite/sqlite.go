/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:

	Implements the storage collaborator using SQLite. In production the same
	patterns apply to PostgreSQL - only minor SQL dialect differences.

INVARIANT ENFORCEMENT:

	The two lifecycle invariants are enforced by partial unique indexes, not
	by application-level read-then-write:
	- idx_open_session_per_user: at most one work_sessions row with
	  session_status='open' per user_id
	- idx_open_break_per_session: at most one break_entries row with
	  end_at IS NULL per session_id
	A violated index surfaces as a typed engine.ConflictError, so a plain
	INSERT is the atomic "check invariant, then insert" the engine requires.

CONCURRENCY:

	Uses sync.RWMutex around the handle. WithTx holds the write lock for the
	whole block, so a quota decision made inside a transaction sees a
	consistent snapshot of used counts and minutes.

WAL MODE:

	SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
	multiple readers don't block, single writer at a time.

TIME ENCODING:

	All instants are stored as UTC RFC3339 text, so lexicographic range
	comparisons match chronological order.

USAGE:

	store, err := sqlite.New("./data/shiftdesk.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/shift-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Profiles (identity records; credentials live with the identity collaborator)
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'csr',
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Work sessions
	CREATE TABLE IF NOT EXISTS work_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		work_date TEXT NOT NULL,
		clock_in_at TEXT NOT NULL,
		clock_out_at TEXT,
		session_status TEXT NOT NULL DEFAULT 'open',
		remarks TEXT NOT NULL DEFAULT ''
	);

	-- CRITICAL: at most one open session per user at any instant.
	-- Concurrent clock-ins race on this index; exactly one insert wins.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_open_session_per_user
		ON work_sessions(user_id) WHERE session_status = 'open';

	CREATE INDEX IF NOT EXISTS idx_sessions_user_clock_in
		ON work_sessions(user_id, clock_in_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_status
		ON work_sessions(session_status);

	-- Break entries (owned by their session)
	CREATE TABLE IF NOT EXISTS break_entries (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES work_sessions(id),
		user_id TEXT NOT NULL REFERENCES profiles(id),
		break_type TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT,
		notes TEXT NOT NULL DEFAULT ''
	);

	-- CRITICAL: at most one open break per session.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_open_break_per_session
		ON break_entries(session_id) WHERE end_at IS NULL;

	-- Quota window queries (hot path at break start)
	CREATE INDEX IF NOT EXISTS idx_breaks_user_type_start
		ON break_entries(user_id, break_type, start_at);
	CREATE INDEX IF NOT EXISTS idx_breaks_session
		ON break_entries(session_id);

	-- Call entries (append-only)
	CREATE TABLE IF NOT EXISTS call_entries (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES work_sessions(id),
		user_id TEXT NOT NULL REFERENCES profiles(id),
		call_status TEXT NOT NULL,
		call_outcome TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calls_user_occurred
		ON call_entries(user_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_calls_session
		ON call_entries(session_id);

	-- Deposit entries (append-only; amount stored as decimal text)
	CREATE TABLE IF NOT EXISTS deposit_entries (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES work_sessions(id),
		user_id TEXT NOT NULL REFERENCES profiles(id),
		amount TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_user_occurred
		ON deposit_entries(user_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_deposits_session
		ON deposit_entries(session_id);

	-- Break allowances (per-type quota configuration)
	CREATE TABLE IF NOT EXISTS break_allowances (
		break_type TEXT PRIMARY KEY,
		max_count INTEGER NOT NULL DEFAULT 0,
		max_minutes INTEGER NOT NULL DEFAULT 0,
		is_enabled BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Org settings (single row)
	CREATE TABLE IF NOT EXISTS org_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		timezone TEXT NOT NULL,
		break_reset_mode TEXT NOT NULL,
		week_start INTEGER NOT NULL,
		period_days INTEGER NOT NULL,
		period_epoch TEXT NOT NULL,
		rolling_window_seconds INTEGER NOT NULL
	);

	-- Call status/outcome dropdown options
	CREATE TABLE IF NOT EXISTS call_options (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE(kind, value)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.seedSettings()
}

// seedSettings inserts the default org settings row if none exists.
func (s *Store) seedSettings() error {
	d := engine.DefaultSettings()
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO org_settings
		(id, timezone, break_reset_mode, week_start, period_days, period_epoch, rolling_window_seconds)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		d.Timezone, string(d.ResetMode), int(d.WeekStart), d.PeriodDays,
		encodeTime(d.PeriodEpoch), int(d.RollingWindow/time.Second),
	)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx. Every query below is a
// lockless package-level helper against it; the Store methods add locking
// and pass s.db, the txStore methods pass the transaction handle.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SESSION STORE
// =============================================================================

const sessionSelect = `
	SELECT id, user_id, work_date, clock_in_at, clock_out_at, session_status, remarks
	FROM work_sessions`

func (s *Store) CreateSession(ctx context.Context, sess engine.WorkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createSession(ctx, s.db, sess)
}

func createSession(ctx context.Context, q dbtx, sess engine.WorkSession) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO work_sessions (id, user_id, work_date, clock_in_at, clock_out_at, session_status, remarks)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.WorkDate, encodeTime(sess.ClockInAt),
		encodeTimePtr(sess.ClockOutAt), string(sess.Status), sess.Remarks,
	)
	if err != nil {
		// The partial unique index reports the violation as
		// "UNIQUE constraint failed: work_sessions.user_id".
		if isUniqueViolation(err, "work_sessions.user_id") {
			return &engine.ConflictError{Reason: "user already has an open session"}
		}
		return &engine.StorageError{Op: "create session", Err: err}
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id engine.SessionID) (*engine.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSession(ctx, s.db, id)
}

func getSession(ctx context.Context, q dbtx, id engine.SessionID) (*engine.WorkSession, error) {
	return scanSessionRow(q.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, id))
}

func (s *Store) OpenSession(ctx context.Context, userID engine.UserID) (*engine.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openSession(ctx, s.db, userID)
}

func openSession(ctx context.Context, q dbtx, userID engine.UserID) (*engine.WorkSession, error) {
	return scanSessionRow(q.QueryRowContext(ctx,
		sessionSelect+` WHERE user_id = ? AND session_status = 'open'`, userID))
}

func (s *Store) UpdateSession(ctx context.Context, sess engine.WorkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSession(ctx, s.db, sess)
}

func updateSession(ctx context.Context, q dbtx, sess engine.WorkSession) error {
	res, err := q.ExecContext(ctx, `
		UPDATE work_sessions
		SET clock_out_at = ?, session_status = ?, remarks = ?
		WHERE id = ?`,
		encodeTimePtr(sess.ClockOutAt), string(sess.Status), sess.Remarks, sess.ID,
	)
	if err != nil {
		return &engine.StorageError{Op: "update session", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Kind: "session", ID: string(sess.ID)}
	}
	return nil
}

func (s *Store) SessionsInRange(ctx context.Context, userID engine.UserID, from, to time.Time) ([]engine.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sessionsInRange(ctx, s.db, userID, from, to)
}

func sessionsInRange(ctx context.Context, q dbtx, userID engine.UserID, from, to time.Time) ([]engine.WorkSession, error) {
	return querySessions(ctx, q,
		sessionSelect+` WHERE user_id = ? AND clock_in_at >= ? AND clock_in_at < ? ORDER BY clock_in_at DESC`,
		userID, encodeTime(from), encodeTime(to))
}

func (s *Store) RecentSessions(ctx context.Context, userID engine.UserID, limit int) ([]engine.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentSessions(ctx, s.db, userID, limit)
}

func recentSessions(ctx context.Context, q dbtx, userID engine.UserID, limit int) ([]engine.WorkSession, error) {
	return querySessions(ctx, q,
		sessionSelect+` WHERE user_id = ? ORDER BY clock_in_at DESC LIMIT ?`, userID, limit)
}

func (s *Store) OpenSessions(ctx context.Context) ([]engine.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openSessions(ctx, s.db)
}

func openSessions(ctx context.Context, q dbtx) ([]engine.WorkSession, error) {
	return querySessions(ctx, q,
		sessionSelect+` WHERE session_status = 'open' ORDER BY clock_in_at DESC`)
}

func querySessions(ctx context.Context, q dbtx, query string, args ...any) ([]engine.WorkSession, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &engine.StorageError{Op: "query sessions", Err: err}
	}
	defer rows.Close()

	var sessions []engine.WorkSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, &engine.StorageError{Op: "scan session", Err: err}
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (engine.WorkSession, error) {
	var (
		sess     engine.WorkSession
		clockIn  string
		clockOut sql.NullString
		status   string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.WorkDate, &clockIn, &clockOut, &status, &sess.Remarks)
	if err != nil {
		return sess, err
	}
	sess.ClockInAt = decodeTime(clockIn)
	sess.ClockOutAt = decodeTimePtr(clockOut)
	sess.Status = engine.SessionStatus(status)
	return sess, nil
}

func scanSessionRow(row *sql.Row) (*engine.WorkSession, error) {
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StorageError{Op: "scan session", Err: err}
	}
	return &sess, nil
}

// =============================================================================
// BREAK STORE
// =============================================================================

const breakSelect = `
	SELECT id, session_id, user_id, break_type, start_at, end_at, notes
	FROM break_entries`

func (s *Store) CreateBreak(ctx context.Context, b engine.BreakEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createBreak(ctx, s.db, b)
}

func createBreak(ctx context.Context, q dbtx, b engine.BreakEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO break_entries (id, session_id, user_id, break_type, start_at, end_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SessionID, b.UserID, b.BreakType, encodeTime(b.StartAt),
		encodeTimePtr(b.EndAt), b.Notes,
	)
	if err != nil {
		if isUniqueViolation(err, "break_entries.session_id") {
			return &engine.ConflictError{Reason: "session already has an open break"}
		}
		return &engine.StorageError{Op: "create break", Err: err}
	}
	return nil
}

func (s *Store) GetBreak(ctx context.Context, id engine.BreakID) (*engine.BreakEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBreak(ctx, s.db, id)
}

func getBreak(ctx context.Context, q dbtx, id engine.BreakID) (*engine.BreakEntry, error) {
	return scanBreakRow(q.QueryRowContext(ctx, breakSelect+` WHERE id = ?`, id))
}

func (s *Store) UpdateBreak(ctx context.Context, b engine.BreakEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateBreak(ctx, s.db, b)
}

func updateBreak(ctx context.Context, q dbtx, b engine.BreakEntry) error {
	res, err := q.ExecContext(ctx, `
		UPDATE break_entries SET end_at = ?, notes = ? WHERE id = ?`,
		encodeTimePtr(b.EndAt), b.Notes, b.ID,
	)
	if err != nil {
		return &engine.StorageError{Op: "update break", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Kind: "break", ID: string(b.ID)}
	}
	return nil
}

func (s *Store) BreaksBySession(ctx context.Context, sessionID engine.SessionID) ([]engine.BreakEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return breaksBySession(ctx, s.db, sessionID)
}

func breaksBySession(ctx context.Context, q dbtx, sessionID engine.SessionID) ([]engine.BreakEntry, error) {
	return queryBreaks(ctx, q,
		breakSelect+` WHERE session_id = ? ORDER BY start_at ASC`, sessionID)
}

func (s *Store) BreaksInWindow(ctx context.Context, userID engine.UserID, breakType string, from, to time.Time) ([]engine.BreakEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return breaksInWindow(ctx, s.db, userID, breakType, from, to)
}

func breaksInWindow(ctx context.Context, q dbtx, userID engine.UserID, breakType string, from, to time.Time) ([]engine.BreakEntry, error) {
	return queryBreaks(ctx, q,
		breakSelect+` WHERE user_id = ? AND break_type = ? AND start_at >= ? AND start_at < ? ORDER BY start_at ASC`,
		userID, breakType, encodeTime(from), encodeTime(to))
}

func (s *Store) OpenBreak(ctx context.Context, sessionID engine.SessionID) (*engine.BreakEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openBreak(ctx, s.db, sessionID)
}

func openBreak(ctx context.Context, q dbtx, sessionID engine.SessionID) (*engine.BreakEntry, error) {
	return scanBreakRow(q.QueryRowContext(ctx,
		breakSelect+` WHERE session_id = ? AND end_at IS NULL`, sessionID))
}

func queryBreaks(ctx context.Context, q dbtx, query string, args ...any) ([]engine.BreakEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &engine.StorageError{Op: "query breaks", Err: err}
	}
	defer rows.Close()

	var breaks []engine.BreakEntry
	for rows.Next() {
		b, err := scanBreak(rows)
		if err != nil {
			return nil, &engine.StorageError{Op: "scan break", Err: err}
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

func scanBreak(row rowScanner) (engine.BreakEntry, error) {
	var (
		b       engine.BreakEntry
		startAt string
		endAt   sql.NullString
	)
	err := row.Scan(&b.ID, &b.SessionID, &b.UserID, &b.BreakType, &startAt, &endAt, &b.Notes)
	if err != nil {
		return b, err
	}
	b.StartAt = decodeTime(startAt)
	b.EndAt = decodeTimePtr(endAt)
	return b, nil
}

func scanBreakRow(row *sql.Row) (*engine.BreakEntry, error) {
	b, err := scanBreak(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StorageError{Op: "scan break", Err: err}
	}
	return &b, nil
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (s *Store) CreateCall(ctx context.Context, c engine.CallEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createCall(ctx, s.db, c)
}

func createCall(ctx context.Context, q dbtx, c engine.CallEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO call_entries (id, session_id, user_id, call_status, call_outcome, notes, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.UserID, c.Status, c.Outcome, c.Notes, encodeTime(c.OccurredAt),
	)
	if err != nil {
		return &engine.StorageError{Op: "create call", Err: err}
	}
	return nil
}

func (s *Store) CreateDeposit(ctx context.Context, d engine.DepositEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createDeposit(ctx, s.db, d)
}

func createDeposit(ctx context.Context, q dbtx, d engine.DepositEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO deposit_entries (id, session_id, user_id, amount, reference, notes, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.UserID, d.Amount.String(), d.Reference, d.Notes, encodeTime(d.OccurredAt),
	)
	if err != nil {
		return &engine.StorageError{Op: "create deposit", Err: err}
	}
	return nil
}

func (s *Store) CountCalls(ctx context.Context, userID engine.UserID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countCalls(ctx, s.db, userID, from, to)
}

func countCalls(ctx context.Context, q dbtx, userID engine.UserID, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM call_entries WHERE occurred_at >= ? AND occurred_at < ?`
	args := []any{encodeTime(from), encodeTime(to)}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, &engine.StorageError{Op: "count calls", Err: err}
	}
	return count, nil
}

func (s *Store) SumDeposits(ctx context.Context, userID engine.UserID, from, to time.Time) (int, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumDeposits(ctx, s.db, userID, from, to)
}

func sumDeposits(ctx context.Context, q dbtx, userID engine.UserID, from, to time.Time) (int, decimal.Decimal, error) {
	query := `SELECT amount FROM deposit_entries WHERE occurred_at >= ? AND occurred_at < ?`
	args := []any{encodeTime(from), encodeTime(to)}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, decimal.Zero, &engine.StorageError{Op: "sum deposits", Err: err}
	}
	defer rows.Close()

	// Summed in Go with decimal: SQLite's SUM would go through float64.
	count := 0
	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, decimal.Zero, &engine.StorageError{Op: "sum deposits", Err: err}
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return 0, decimal.Zero, &engine.StorageError{Op: "sum deposits", Err: err}
		}
		count++
		total = total.Add(amount)
	}
	return count, total, rows.Err()
}

func (s *Store) CountBySession(ctx context.Context, sessionID engine.SessionID) (int, int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countBySession(ctx, s.db, sessionID)
}

func countBySession(ctx context.Context, q dbtx, sessionID engine.SessionID) (int, int, int, error) {
	var calls, deposits, breaks int
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM call_entries WHERE session_id = ?),
			(SELECT COUNT(*) FROM deposit_entries WHERE session_id = ?),
			(SELECT COUNT(*) FROM break_entries WHERE session_id = ?)`,
		sessionID, sessionID, sessionID,
	).Scan(&calls, &deposits, &breaks)
	if err != nil {
		return 0, 0, 0, &engine.StorageError{Op: "count by session", Err: err}
	}
	return calls, deposits, breaks, nil
}

// =============================================================================
// CONFIG STORE
// =============================================================================

func (s *Store) Allowances(ctx context.Context) ([]engine.BreakAllowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return allowances(ctx, s.db)
}

func allowances(ctx context.Context, q dbtx) ([]engine.BreakAllowance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT break_type, max_count, max_minutes, is_enabled
		FROM break_allowances ORDER BY break_type`)
	if err != nil {
		return nil, &engine.StorageError{Op: "query allowances", Err: err}
	}
	defer rows.Close()

	var out []engine.BreakAllowance
	for rows.Next() {
		var a engine.BreakAllowance
		if err := rows.Scan(&a.BreakType, &a.MaxCount, &a.MaxMinutes, &a.IsEnabled); err != nil {
			return nil, &engine.StorageError{Op: "scan allowance", Err: err}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveAllowance(ctx context.Context, a engine.BreakAllowance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAllowance(ctx, s.db, a)
}

func saveAllowance(ctx context.Context, q dbtx, a engine.BreakAllowance) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO break_allowances (break_type, max_count, max_minutes, is_enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(break_type) DO UPDATE SET
			max_count = excluded.max_count,
			max_minutes = excluded.max_minutes,
			is_enabled = excluded.is_enabled`,
		a.BreakType, a.MaxCount, a.MaxMinutes, a.IsEnabled,
	)
	if err != nil {
		return &engine.StorageError{Op: "save allowance", Err: err}
	}
	return nil
}

func (s *Store) Settings(ctx context.Context) (engine.OrgSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadSettings(ctx, s.db)
}

func loadSettings(ctx context.Context, q dbtx) (engine.OrgSettings, error) {
	var (
		o         engine.OrgSettings
		mode      string
		weekStart int
		epoch     string
		rolling   int
	)
	err := q.QueryRowContext(ctx, `
		SELECT timezone, break_reset_mode, week_start, period_days, period_epoch, rolling_window_seconds
		FROM org_settings WHERE id = 1`,
	).Scan(&o.Timezone, &mode, &weekStart, &o.PeriodDays, &epoch, &rolling)
	if err == sql.ErrNoRows {
		return engine.DefaultSettings(), nil
	}
	if err != nil {
		return o, &engine.StorageError{Op: "load settings", Err: err}
	}
	o.ResetMode = engine.ResetMode(mode)
	o.WeekStart = time.Weekday(weekStart)
	o.PeriodEpoch = decodeTime(epoch)
	o.RollingWindow = time.Duration(rolling) * time.Second
	return o, nil
}

func (s *Store) SaveSettings(ctx context.Context, o engine.OrgSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSettings(ctx, s.db, o)
}

func saveSettings(ctx context.Context, q dbtx, o engine.OrgSettings) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO org_settings
		(id, timezone, break_reset_mode, week_start, period_days, period_epoch, rolling_window_seconds)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timezone = excluded.timezone,
			break_reset_mode = excluded.break_reset_mode,
			week_start = excluded.week_start,
			period_days = excluded.period_days,
			period_epoch = excluded.period_epoch,
			rolling_window_seconds = excluded.rolling_window_seconds`,
		o.Timezone, string(o.ResetMode), int(o.WeekStart), o.PeriodDays,
		encodeTime(o.PeriodEpoch), int(o.RollingWindow/time.Second),
	)
	if err != nil {
		return &engine.StorageError{Op: "save settings", Err: err}
	}
	return nil
}

func (s *Store) CallOptions(ctx context.Context, kind engine.CallOptionKind) ([]engine.CallOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return callOptions(ctx, s.db, kind)
}

func callOptions(ctx context.Context, q dbtx, kind engine.CallOptionKind) ([]engine.CallOption, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, kind, value, sort_order, is_enabled
		FROM call_options WHERE kind = ? ORDER BY sort_order, value`, string(kind))
	if err != nil {
		return nil, &engine.StorageError{Op: "query call options", Err: err}
	}
	defer rows.Close()

	var out []engine.CallOption
	for rows.Next() {
		var o engine.CallOption
		var k string
		if err := rows.Scan(&o.ID, &k, &o.Value, &o.SortOrder, &o.IsEnabled); err != nil {
			return nil, &engine.StorageError{Op: "scan call option", Err: err}
		}
		o.Kind = engine.CallOptionKind(k)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) SaveCallOption(ctx context.Context, o engine.CallOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCallOption(ctx, s.db, o)
}

func saveCallOption(ctx context.Context, q dbtx, o engine.CallOption) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO call_options (id, kind, value, sort_order, is_enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			value = excluded.value,
			sort_order = excluded.sort_order,
			is_enabled = excluded.is_enabled`,
		o.ID, string(o.Kind), o.Value, o.SortOrder, o.IsEnabled,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.ConflictError{Reason: "duplicate call option value"}
		}
		return &engine.StorageError{Op: "save call option", Err: err}
	}
	return nil
}

// =============================================================================
// PROFILE STORE
// =============================================================================

func (s *Store) GetProfile(ctx context.Context, id engine.UserID) (*engine.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProfile(ctx, s.db, id)
}

func getProfile(ctx context.Context, q dbtx, id engine.UserID) (*engine.Profile, error) {
	var p engine.Profile
	var role string
	err := q.QueryRowContext(ctx, `
		SELECT id, username, full_name, role, is_active FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Username, &p.FullName, &role, &p.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StorageError{Op: "load profile", Err: err}
	}
	p.Role = engine.Role(role)
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p engine.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProfile(ctx, s.db, p)
}

func saveProfile(ctx context.Context, q dbtx, p engine.Profile) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO profiles (id, username, full_name, role, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			role = excluded.role,
			is_active = excluded.is_active`,
		p.ID, p.Username, p.FullName, string(p.Role), p.IsActive,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.ConflictError{Reason: "username already taken"}
		}
		return &engine.StorageError{Op: "save profile", Err: err}
	}
	return nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]engine.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProfiles(ctx, s.db)
}

func listProfiles(ctx context.Context, q dbtx) ([]engine.Profile, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, username, full_name, role, is_active FROM profiles ORDER BY username`)
	if err != nil {
		return nil, &engine.StorageError{Op: "query profiles", Err: err}
	}
	defer rows.Close()

	var out []engine.Profile
	for rows.Next() {
		var p engine.Profile
		var role string
		if err := rows.Scan(&p.ID, &p.Username, &p.FullName, &role, &p.IsActive); err != nil {
			return nil, &engine.StorageError{Op: "scan profile", Err: err}
		}
		p.Role = engine.Role(role)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn inside a database transaction while holding the write
// lock, so the block sees a consistent snapshot and no concurrent writer
// can slip in between its reads and writes.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &engine.StorageError{Op: "begin tx", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return &engine.StorageError{Op: "commit tx", Err: err}
	}
	return nil
}

// txStore routes every call through the transaction handle. The parent's
// mutex is already held by WithTx, so calls go straight to the lockless
// helpers.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateSession(ctx context.Context, sess engine.WorkSession) error {
	return createSession(ctx, ts.tx, sess)
}

func (ts *txStore) GetSession(ctx context.Context, id engine.SessionID) (*engine.WorkSession, error) {
	return getSession(ctx, ts.tx, id)
}

func (ts *txStore) OpenSession(ctx context.Context, userID engine.UserID) (*engine.WorkSession, error) {
	return openSession(ctx, ts.tx, userID)
}

func (ts *txStore) UpdateSession(ctx context.Context, sess engine.WorkSession) error {
	return updateSession(ctx, ts.tx, sess)
}

func (ts *txStore) SessionsInRange(ctx context.Context, userID engine.UserID, from, to time.Time) ([]engine.WorkSession, error) {
	return sessionsInRange(ctx, ts.tx, userID, from, to)
}

func (ts *txStore) RecentSessions(ctx context.Context, userID engine.UserID, limit int) ([]engine.WorkSession, error) {
	return recentSessions(ctx, ts.tx, userID, limit)
}

func (ts *txStore) OpenSessions(ctx context.Context) ([]engine.WorkSession, error) {
	return openSessions(ctx, ts.tx)
}

func (ts *txStore) CreateBreak(ctx context.Context, b engine.BreakEntry) error {
	return createBreak(ctx, ts.tx, b)
}

func (ts *txStore) GetBreak(ctx context.Context, id engine.BreakID) (*engine.BreakEntry, error) {
	return getBreak(ctx, ts.tx, id)
}

func (ts *txStore) UpdateBreak(ctx context.Context, b engine.BreakEntry) error {
	return updateBreak(ctx, ts.tx, b)
}

func (ts *txStore) BreaksBySession(ctx context.Context, sessionID engine.SessionID) ([]engine.BreakEntry, error) {
	return breaksBySession(ctx, ts.tx, sessionID)
}

func (ts *txStore) BreaksInWindow(ctx context.Context, userID engine.UserID, breakType string, from, to time.Time) ([]engine.BreakEntry, error) {
	return breaksInWindow(ctx, ts.tx, userID, breakType, from, to)
}

func (ts *txStore) OpenBreak(ctx context.Context, sessionID engine.SessionID) (*engine.BreakEntry, error) {
	return openBreak(ctx, ts.tx, sessionID)
}

func (ts *txStore) CreateCall(ctx context.Context, c engine.CallEntry) error {
	return createCall(ctx, ts.tx, c)
}

func (ts *txStore) CreateDeposit(ctx context.Context, d engine.DepositEntry) error {
	return createDeposit(ctx, ts.tx, d)
}

func (ts *txStore) CountCalls(ctx context.Context, userID engine.UserID, from, to time.Time) (int, error) {
	return countCalls(ctx, ts.tx, userID, from, to)
}

func (ts *txStore) SumDeposits(ctx context.Context, userID engine.UserID, from, to time.Time) (int, decimal.Decimal, error) {
	return sumDeposits(ctx, ts.tx, userID, from, to)
}

func (ts *txStore) CountBySession(ctx context.Context, sessionID engine.SessionID) (int, int, int, error) {
	return countBySession(ctx, ts.tx, sessionID)
}

func (ts *txStore) Allowances(ctx context.Context) ([]engine.BreakAllowance, error) {
	return allowances(ctx, ts.tx)
}

func (ts *txStore) SaveAllowance(ctx context.Context, a engine.BreakAllowance) error {
	return saveAllowance(ctx, ts.tx, a)
}

func (ts *txStore) Settings(ctx context.Context) (engine.OrgSettings, error) {
	return loadSettings(ctx, ts.tx)
}

func (ts *txStore) SaveSettings(ctx context.Context, o engine.OrgSettings) error {
	return saveSettings(ctx, ts.tx, o)
}

func (ts *txStore) CallOptions(ctx context.Context, kind engine.CallOptionKind) ([]engine.CallOption, error) {
	return callOptions(ctx, ts.tx, kind)
}

func (ts *txStore) SaveCallOption(ctx context.Context, o engine.CallOption) error {
	return saveCallOption(ctx, ts.tx, o)
}

func (ts *txStore) GetProfile(ctx context.Context, id engine.UserID) (*engine.Profile, error) {
	return getProfile(ctx, ts.tx, id)
}

func (ts *txStore) SaveProfile(ctx context.Context, p engine.Profile) error {
	return saveProfile(ctx, ts.tx, p)
}

func (ts *txStore) ListProfiles(ctx context.Context) ([]engine.Profile, error) {
	return listProfiles(ctx, ts.tx)
}

func (ts *txStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	// Already inside a transaction.
	return fn(ts)
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func decodeTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := decodeTime(s.String)
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isUniqueViolation(err error, column string) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), column)
}

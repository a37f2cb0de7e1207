/*
service.go - The accounting service

PURPOSE:

	Orchestrates the session and break state machines, quota enforcement and
	aggregation against the storage collaborator. This is the surface the
	UI/CRUD layer consumes; every operation takes plain identifiers and
	returns either a record or a typed error.

STATE MACHINES:

	Session (per user):  NoOpenSession -> Open -> Closed
	Break (per session): NoOpenBreak -> OnBreak -> NoOpenBreak (repeatable)

ATOMICITY:

	clockIn relies on the store's conditional insert: two concurrent clock-ins
	for the same user race on the open-session uniqueness and exactly one
	observes ErrConflict. startBreak wraps its quota read and insert in
	WithTx so two concurrent starts cannot both consume the last remaining
	slot. No operation partially applies state.

POLICY DECISIONS:
  - Clock-out auto-closes a still-open break, stamping its end with the
    clock-out instant. No dangling open breaks on closed sessions.
  - Session remarks and break notes are editable only while the owning
    entity is open.
  - Quota enforcement at startBreak is mandatory; RemainingAllowances is
    the advisory read.
*/
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the shift and break accounting engine. Construct with
// NewService; the zero value is not usable.
type Service struct {
	store Store
	clock Clock
	quota QuotaEngine
	agg   AggregationEngine
}

func NewService(store Store, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{store: store, clock: clock}
}

func newID() string { return uuid.NewString() }

// =============================================================================
// SESSION STATE MACHINE
// =============================================================================

// ClockIn opens a new work session for the user. Fails with ErrConflict if
// the user already has an open session, and with ErrValidation if the
// profile is missing or inactive.
func (s *Service) ClockIn(ctx context.Context, userID UserID) (*WorkSession, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "required"}
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, &NotFoundError{Kind: "profile", ID: string(userID)}
	}
	if !profile.IsActive {
		return nil, &ValidationError{Field: "user_id", Reason: "profile is deactivated"}
	}

	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := WorkSession{
		ID:        SessionID(newID()),
		UserID:    userID,
		WorkDate:  WorkDate(now, settings.Location()),
		ClockInAt: now,
		Status:    SessionOpen,
	}

	// The store's conditional insert is the linearization point: under
	// concurrent clock-ins exactly one insert succeeds.
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ClockOut closes the session. A still-open break is auto-closed with the
// same instant, so the whole transition is all-or-nothing.
func (s *Service) ClockOut(ctx context.Context, sessionID SessionID, userID UserID) (*WorkSession, error) {
	var closed *WorkSession

	err := s.store.WithTx(ctx, func(tx Store) error {
		session, err := s.ownedSession(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return &ConflictError{Reason: "session already closed"}
		}

		now := s.clock.Now()

		open, err := tx.OpenBreak(ctx, sessionID)
		if err != nil {
			return err
		}
		if open != nil {
			open.EndAt = &now
			if err := tx.UpdateBreak(ctx, *open); err != nil {
				return err
			}
		}

		session.ClockOutAt = &now
		session.Status = SessionClosed
		if err := tx.UpdateSession(ctx, *session); err != nil {
			return err
		}
		closed = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// UpdateRemarks replaces the session's remarks. Allowed only while the
// session is open.
func (s *Service) UpdateRemarks(ctx context.Context, sessionID SessionID, userID UserID, remarks string) error {
	session, err := s.ownedSession(ctx, s.store, sessionID, userID)
	if err != nil {
		return err
	}
	if !session.IsOpen() {
		return &ConflictError{Reason: "cannot edit remarks of a closed session"}
	}
	session.Remarks = remarks
	return s.store.UpdateSession(ctx, *session)
}

// ownedSession loads a session and verifies ownership. A session that
// exists but belongs to someone else is reported as not found, never
// revealing another user's data.
func (s *Service) ownedSession(ctx context.Context, store Store, sessionID SessionID, userID UserID) (*WorkSession, error) {
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, &NotFoundError{Kind: "session", ID: string(sessionID)}
	}
	return session, nil
}

// =============================================================================
// BREAK STATE MACHINE
// =============================================================================

// StartBreak opens a typed break on the session. The quota decision and the
// insert happen inside one store transaction so concurrent starts cannot
// both consume the last remaining slot; the at-most-one-open-break invariant
// is the store's conditional insert.
func (s *Service) StartBreak(ctx context.Context, sessionID SessionID, userID UserID, breakType, notes string) (*BreakEntry, error) {
	breakType = strings.TrimSpace(breakType)
	if breakType == "" {
		return nil, &ValidationError{Field: "break_type", Reason: "required"}
	}

	var created *BreakEntry

	err := s.store.WithTx(ctx, func(tx Store) error {
		session, err := s.ownedSession(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return &ConflictError{Reason: "cannot start a break on a closed session"}
		}

		allowance, err := s.allowanceFor(ctx, tx, breakType)
		if err != nil {
			return err
		}

		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}

		usage, err := s.usageFor(ctx, tx, session.UserID, *allowance, settings)
		if err != nil {
			return err
		}
		if !usage.Available() {
			return &QuotaExceededError{BreakType: breakType, Usage: usage}
		}

		entry := BreakEntry{
			ID:        BreakID(newID()),
			SessionID: sessionID,
			UserID:    session.UserID,
			BreakType: breakType,
			StartAt:   s.clock.Now(),
			Notes:     notes,
		}
		if err := tx.CreateBreak(ctx, entry); err != nil {
			return err
		}
		created = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EndBreak closes the break. Fails with ErrConflict if already closed.
func (s *Service) EndBreak(ctx context.Context, breakID BreakID, userID UserID) (*BreakEntry, error) {
	entry, err := s.ownedBreak(ctx, breakID, userID)
	if err != nil {
		return nil, err
	}
	if !entry.IsOpen() {
		return nil, &ConflictError{Reason: "break already ended"}
	}

	now := s.clock.Now()
	entry.EndAt = &now
	if err := s.store.UpdateBreak(ctx, *entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateBreakNotes replaces the break's notes. Allowed only while the break
// is open.
func (s *Service) UpdateBreakNotes(ctx context.Context, breakID BreakID, userID UserID, notes string) error {
	entry, err := s.ownedBreak(ctx, breakID, userID)
	if err != nil {
		return err
	}
	if !entry.IsOpen() {
		return &ConflictError{Reason: "cannot edit notes of an ended break"}
	}
	entry.Notes = notes
	return s.store.UpdateBreak(ctx, *entry)
}

func (s *Service) ownedBreak(ctx context.Context, breakID BreakID, userID UserID) (*BreakEntry, error) {
	entry, err := s.store.GetBreak(ctx, breakID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.UserID != userID {
		return nil, &NotFoundError{Kind: "break", ID: string(breakID)}
	}
	return entry, nil
}

func (s *Service) allowanceFor(ctx context.Context, store Store, breakType string) (*BreakAllowance, error) {
	allowances, err := store.Allowances(ctx)
	if err != nil {
		return nil, err
	}
	for i := range allowances {
		if allowances[i].BreakType == breakType && allowances[i].IsEnabled {
			return &allowances[i], nil
		}
	}
	return nil, &ValidationError{Field: "break_type", Reason: "unknown or disabled break type"}
}

func (s *Service) usageFor(ctx context.Context, store Store, userID UserID, allowance BreakAllowance, settings OrgSettings) (Usage, error) {
	now := s.clock.Now()
	window := settings.WindowFor(now)
	entries, err := store.BreaksInWindow(ctx, userID, allowance.BreakType, window.Start, window.End)
	if err != nil {
		return Usage{}, err
	}
	return s.quota.Usage(allowance, entries, window, now), nil
}

// =============================================================================
// QUOTA READS
// =============================================================================

// RemainingAllowances reports usage for every enabled break type in the
// current reset window, sorted by break type at the store.
func (s *Service) RemainingAllowances(ctx context.Context, userID UserID) ([]Usage, error) {
	allowances, err := s.store.Allowances(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	var usages []Usage
	for _, a := range allowances {
		if !a.IsEnabled {
			continue
		}
		u, err := s.usageFor(ctx, s.store, userID, a, settings)
		if err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, nil
}

// =============================================================================
// ENTRY LOGGING - Append-only facts
// =============================================================================

// LogCall records a call against the user's open session. Status and
// outcome must match an enabled option.
func (s *Service) LogCall(ctx context.Context, userID UserID, sessionID SessionID, status, outcome, notes string) (*CallEntry, error) {
	session, err := s.ownedSession(ctx, s.store, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, &ConflictError{Reason: "cannot log a call on a closed session"}
	}

	if err := s.validateOption(ctx, CallOptionStatus, "status", status); err != nil {
		return nil, err
	}
	if err := s.validateOption(ctx, CallOptionOutcome, "outcome", outcome); err != nil {
		return nil, err
	}

	entry := CallEntry{
		ID:         newID(),
		SessionID:  sessionID,
		UserID:     userID,
		Status:     status,
		Outcome:    outcome,
		Notes:      notes,
		OccurredAt: s.clock.Now(),
	}
	if err := s.store.CreateCall(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// LogDeposit records a deposit against the user's open session.
func (s *Service) LogDeposit(ctx context.Context, userID UserID, sessionID SessionID, amount decimal.Decimal, reference, notes string) (*DepositEntry, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	session, err := s.ownedSession(ctx, s.store, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, &ConflictError{Reason: "cannot log a deposit on a closed session"}
	}

	entry := DepositEntry{
		ID:         newID(),
		SessionID:  sessionID,
		UserID:     userID,
		Amount:     amount,
		Reference:  reference,
		Notes:      notes,
		OccurredAt: s.clock.Now(),
	}
	if err := s.store.CreateDeposit(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) validateOption(ctx context.Context, kind CallOptionKind, field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "required"}
	}
	options, err := s.store.CallOptions(ctx, kind)
	if err != nil {
		return err
	}
	for _, o := range options {
		if o.IsEnabled && o.Value == value {
			return nil
		}
	}
	return &ValidationError{Field: field, Reason: "unknown " + field + " option"}
}

// =============================================================================
// AGGREGATION READS
// =============================================================================

// SessionSummary computes the live summary of one session. For an open
// session the result is volatile and must not be cached past ComputedAt.
func (s *Service) SessionSummary(ctx context.Context, sessionID SessionID) (*SessionSummary, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Kind: "session", ID: string(sessionID)}
	}

	breaks, err := s.store.BreaksBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summary := s.agg.Summarize(*session, breaks, s.clock.Now())
	return &summary, nil
}

// UserStats aggregates calls, deposits, breaks and sessions for one user
// over [from, to). A zero range defaults to today in the org timezone.
func (s *Service) UserStats(ctx context.Context, userID UserID, from, to time.Time) (*UserStats, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if from.IsZero() || to.IsZero() {
		start := StartOfDay(s.clock.Now(), settings.Location())
		from, to = start, start.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return nil, &ValidationError{Field: "range", Reason: "to must be after from"}
	}

	calls, err := s.store.CountCalls(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	depositCount, depositTotal, err := s.store.SumDeposits(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	sessions, err := s.store.SessionsInRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	breakMinutes := 0
	for _, session := range sessions {
		breaks, err := s.store.BreaksBySession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		for _, b := range breaks {
			breakMinutes += b.Minutes(now)
		}
	}

	return &UserStats{
		UserID:              userID,
		From:                from,
		To:                  to,
		TotalCalls:          calls,
		TotalDepositsCount:  depositCount,
		TotalDepositsAmount: depositTotal,
		TotalBreakMinutes:   breakMinutes,
		TotalSessions:       len(sessions),
	}, nil
}

// OrgKpis computes the org-wide rollup for today: calls, deposits, active
// sessions and how many of those are currently on break. Live state, no
// caching.
func (s *Service) OrgKpis(ctx context.Context) (*OrgKpis, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	start := StartOfDay(now, settings.Location())
	end := start.AddDate(0, 0, 1)

	calls, err := s.store.CountCalls(ctx, "", start, end)
	if err != nil {
		return nil, err
	}
	depositCount, depositTotal, err := s.store.SumDeposits(ctx, "", start, end)
	if err != nil {
		return nil, err
	}

	open, err := s.store.OpenSessions(ctx)
	if err != nil {
		return nil, err
	}

	onBreak := 0
	for _, session := range open {
		b, err := s.store.OpenBreak(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if b != nil {
			onBreak++
		}
	}

	return &OrgKpis{
		TotalCalls:          calls,
		TotalDepositsCount:  depositCount,
		TotalDepositsAmount: depositTotal,
		ActiveSessions:      len(open),
		OnBreakCount:        onBreak,
		ComputedAt:          now,
	}, nil
}

// History returns the user's most recent sessions with nested entry counts,
// newest first.
func (s *Service) History(ctx context.Context, userID UserID, limit int) ([]SessionHistory, error) {
	if limit <= 0 {
		limit = 10
	}
	sessions, err := s.store.RecentSessions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]SessionHistory, 0, len(sessions))
	for _, session := range sessions {
		calls, deposits, breaks, err := s.store.CountBySession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		history = append(history, SessionHistory{
			Session:      session,
			CallCount:    calls,
			DepositCount: deposits,
			BreakCount:   breaks,
		})
	}
	return history, nil
}

// LiveSessions returns all open sessions with their on-break status, for
// the admin overview.
func (s *Service) LiveSessions(ctx context.Context) ([]LiveSession, error) {
	open, err := s.store.OpenSessions(ctx)
	if err != nil {
		return nil, err
	}

	live := make([]LiveSession, 0, len(open))
	for _, session := range open {
		ls := LiveSession{Session: session}

		if profile, err := s.store.GetProfile(ctx, session.UserID); err != nil {
			return nil, err
		} else if profile != nil {
			ls.FullName = profile.FullName
		}

		b, err := s.store.OpenBreak(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if b != nil {
			ls.OnBreak = true
			ls.BreakType = b.BreakType
			ls.BreakSince = &b.StartAt
		}
		live = append(live, ls)
	}
	return live, nil
}

// =============================================================================
// ADMIN OPERATIONS - Profiles and configuration
// =============================================================================

// Register creates an active CSR profile. The identity collaborator owns
// credentials; this only records the profile row.
func (s *Service) Register(ctx context.Context, id UserID, username, fullName string) (*Profile, error) {
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "required"}
	}
	if id == "" {
		id = UserID(newID())
	}

	existing, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ConflictError{Reason: "profile already exists"}
	}

	profile := Profile{ID: id, Username: username, FullName: fullName, Role: RoleCSR, IsActive: true}
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetRole changes a profile's role.
func (s *Service) SetRole(ctx context.Context, id UserID, role Role) error {
	if role != RoleAdmin && role != RoleCSR {
		return &ValidationError{Field: "role", Reason: "must be admin or csr"}
	}
	profile, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if profile == nil {
		return &NotFoundError{Kind: "profile", ID: string(id)}
	}
	profile.Role = role
	return s.store.SaveProfile(ctx, *profile)
}

// SetActive toggles a profile's active flag. Deactivation does not close
// an open session; it only prevents future clock-ins.
func (s *Service) SetActive(ctx context.Context, id UserID, active bool) error {
	profile, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if profile == nil {
		return &NotFoundError{Kind: "profile", ID: string(id)}
	}
	profile.IsActive = active
	return s.store.SaveProfile(ctx, *profile)
}

// UpdateSettings replaces the org settings after validating the reset mode
// and timezone name.
func (s *Service) UpdateSettings(ctx context.Context, settings OrgSettings) error {
	if !ValidResetMode(string(settings.ResetMode)) {
		return &ValidationError{Field: "break_reset_mode", Reason: "unknown mode"}
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return &ValidationError{Field: "timezone", Reason: "unknown timezone"}
	}
	if settings.ResetMode == ResetPayPeriod && settings.PeriodDays <= 0 {
		return &ValidationError{Field: "period_days", Reason: "must be positive"}
	}
	if settings.ResetMode == ResetRolling && settings.RollingWindow <= 0 {
		return &ValidationError{Field: "rolling_window", Reason: "must be positive"}
	}
	return s.store.SaveSettings(ctx, settings)
}

// UpdateAllowance creates or replaces one break type's allowance.
func (s *Service) UpdateAllowance(ctx context.Context, a BreakAllowance) error {
	if strings.TrimSpace(a.BreakType) == "" {
		return &ValidationError{Field: "break_type", Reason: "required"}
	}
	if a.MaxCount < 0 || a.MaxMinutes < 0 {
		return &ValidationError{Field: "allowance", Reason: "limits cannot be negative"}
	}
	return s.store.SaveAllowance(ctx, a)
}

// Settings returns the current org settings.
func (s *Service) Settings(ctx context.Context) (OrgSettings, error) {
	return s.store.Settings(ctx)
}

// Allowances returns every configured allowance, enabled or not.
func (s *Service) Allowances(ctx context.Context) ([]BreakAllowance, error) {
	return s.store.Allowances(ctx)
}

// CallOptions returns all call status/outcome options, statuses first.
func (s *Service) CallOptions(ctx context.Context) ([]CallOption, error) {
	statuses, err := s.store.CallOptions(ctx, CallOptionStatus)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.store.CallOptions(ctx, CallOptionOutcome)
	if err != nil {
		return nil, err
	}
	return append(statuses, outcomes...), nil
}

// SaveCallOption creates or replaces one call status/outcome option.
func (s *Service) SaveCallOption(ctx context.Context, opt CallOption) error {
	if opt.Kind != CallOptionStatus && opt.Kind != CallOptionOutcome {
		return &ValidationError{Field: "kind", Reason: "must be status or outcome"}
	}
	if strings.TrimSpace(opt.Value) == "" {
		return &ValidationError{Field: "value", Reason: "required"}
	}
	if opt.ID == "" {
		opt.ID = newID()
	}
	return s.store.SaveCallOption(ctx, opt)
}

// Profiles lists every profile.
func (s *Service) Profiles(ctx context.Context) ([]Profile, error) {
	return s.store.ListProfiles(ctx)
}

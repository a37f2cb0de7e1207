package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shift-engine/engine"
	"github.com/warp/shift-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// stepClock is a manually advanced clock so tests control every instant.
type stepClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type fixture struct {
	svc   *engine.Service
	store *store.Memory
	clock *stepClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	clock := &stepClock{at: utc(2025, time.March, 10, 9, 0)}
	svc := engine.NewService(mem, clock)

	require.NoError(t, mem.SaveProfile(ctx, engine.Profile{
		ID: "u-1", Username: "ana", FullName: "Ana Ruiz", Role: engine.RoleCSR, IsActive: true,
	}))
	require.NoError(t, mem.SaveAllowance(ctx, engine.BreakAllowance{
		BreakType: "lunch", MaxCount: 1, MaxMinutes: 30, IsEnabled: true,
	}))
	require.NoError(t, mem.SaveAllowance(ctx, engine.BreakAllowance{
		BreakType: "short", MaxCount: 3, MaxMinutes: 45, IsEnabled: true,
	}))
	require.NoError(t, mem.SaveCallOption(ctx, engine.CallOption{
		ID: "opt-1", Kind: engine.CallOptionStatus, Value: "answered", SortOrder: 1, IsEnabled: true,
	}))
	require.NoError(t, mem.SaveCallOption(ctx, engine.CallOption{
		ID: "opt-2", Kind: engine.CallOptionOutcome, Value: "sale", SortOrder: 1, IsEnabled: true,
	}))

	return &fixture{svc: svc, store: mem, clock: clock}
}

// =============================================================================
// SESSION STATE MACHINE
// =============================================================================

func TestClockIn_OpensSession(t *testing.T) {
	// GIVEN: an active profile with no open session
	// WHEN: clocking in
	// THEN: an open session stamped with the org-timezone work date exists

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	assert.Equal(t, engine.SessionOpen, session.Status)
	assert.Equal(t, "2025-03-10", session.WorkDate)
	assert.Equal(t, f.clock.Now(), session.ClockInAt)
	assert.Nil(t, session.ClockOutAt)
}

func TestClockIn_SecondOpenSessionRejected(t *testing.T) {
	// GIVEN: a user with an open session
	// WHEN: clocking in again
	// THEN: ErrConflict

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.ClockIn(ctx, "u-1")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestClockIn_AllowedAgainAfterClockOut(t *testing.T) {
	// GIVEN: a user who clocked in and out
	// WHEN: clocking in again the same day
	// THEN: a second session opens (multiple sessions per day are fine)

	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.ClockOut(ctx, first.ID, "u-1")
	require.NoError(t, err)

	second, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestClockIn_UnknownProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ClockIn(context.Background(), "ghost")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestClockIn_DeactivatedProfileRejected(t *testing.T) {
	// GIVEN: a deactivated profile
	// WHEN: clocking in
	// THEN: ErrValidation

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetActive(ctx, "u-1", false))

	_, err := f.svc.ClockIn(ctx, "u-1")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestClockOut_ClosesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	f.clock.Advance(8 * time.Hour)
	closed, err := f.svc.ClockOut(ctx, session.ID, "u-1")
	require.NoError(t, err)

	assert.Equal(t, engine.SessionClosed, closed.Status)
	require.NotNil(t, closed.ClockOutAt)
	assert.Equal(t, f.clock.Now(), *closed.ClockOutAt)
}

func TestClockOut_AutoClosesOpenBreak(t *testing.T) {
	// GIVEN: an open session with an open break
	// WHEN: clocking out
	// THEN: the break is closed with the clock-out instant, atomically

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "short", "")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.ClockOut(ctx, session.ID, "u-1")
	require.NoError(t, err)

	stored, err := f.store.GetBreak(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EndAt)
	assert.Equal(t, f.clock.Now(), *stored.EndAt)
}

func TestClockOut_AlreadyClosedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	_, err = f.svc.ClockOut(ctx, session.ID, "u-1")
	require.NoError(t, err)

	_, err = f.svc.ClockOut(ctx, session.ID, "u-1")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestClockOut_SomeoneElsesSessionLooksAbsent(t *testing.T) {
	// GIVEN: a session owned by u-1
	// WHEN: u-2 tries to close it
	// THEN: not found, never a permission hint

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveProfile(ctx, engine.Profile{
		ID: "u-2", Username: "bo", Role: engine.RoleCSR, IsActive: true,
	}))

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.ClockOut(ctx, session.ID, "u-2")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestUpdateRemarks_OpenSessionOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateRemarks(ctx, session.ID, "u-1", "system slow today"))

	stored, err := f.store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "system slow today", stored.Remarks)

	_, err = f.svc.ClockOut(ctx, session.ID, "u-1")
	require.NoError(t, err)

	err = f.svc.UpdateRemarks(ctx, session.ID, "u-1", "late edit")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

// =============================================================================
// BREAK STATE MACHINE AND QUOTAS
// =============================================================================

func TestStartBreak_RoundTrip(t *testing.T) {
	// GIVEN: an open session
	// WHEN: starting and ending a break
	// THEN: the entry closes with the right duration and can repeat

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "short", "coffee")
	require.NoError(t, err)
	assert.True(t, entry.IsOpen())

	f.clock.Advance(10 * time.Minute)
	ended, err := f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)
	assert.False(t, ended.IsOpen())
	assert.Equal(t, 10, ended.Minutes(f.clock.Now()))

	// Another break of the same type may start while quota remains.
	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "short", "")
	require.NoError(t, err)
}

func TestStartBreak_SecondOpenBreakRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "short", "")
	require.NoError(t, err)

	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestStartBreak_CountQuotaExhausted(t *testing.T) {
	// GIVEN: lunch allowance of 1 per day, one lunch already taken
	// WHEN: starting a second lunch
	// THEN: ErrQuotaExceeded carrying the usage snapshot

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)

	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	require.ErrorIs(t, err, engine.ErrQuotaExceeded)

	var quotaErr *engine.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "lunch", quotaErr.BreakType)
	assert.Equal(t, 1, quotaErr.Usage.UsedCount)
}

func TestStartBreak_QuotaResetsNextDay(t *testing.T) {
	// GIVEN: daily reset mode and an exhausted lunch quota
	// WHEN: the clock crosses midnight
	// THEN: the quota is available again

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)

	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	require.ErrorIs(t, err, engine.ErrQuotaExceeded)

	f.clock.Advance(16 * time.Hour) // past midnight
	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	assert.NoError(t, err)
}

func TestStartBreak_UnknownTypeRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "siesta", "")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestStartBreak_DisabledTypeRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveAllowance(ctx, engine.BreakAllowance{
		BreakType: "lunch", MaxCount: 1, MaxMinutes: 30, IsEnabled: false,
	}))

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestStartBreak_ConcurrentStartsConsumeOneSlot(t *testing.T) {
	// GIVEN: lunch allowance of 1 and two concurrent start attempts
	// WHEN: both race for the last slot
	// THEN: exactly one succeeds

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestEndBreak_AlreadyEnded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "short", "")
	require.NoError(t, err)
	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)

	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestUpdateBreakNotes_OpenBreakOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "short", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.UpdateBreakNotes(ctx, entry.ID, "u-1", "pharmacy run"))

	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)

	err = f.svc.UpdateBreakNotes(ctx, entry.ID, "u-1", "late edit")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestRemainingAllowances_ReflectsUsage(t *testing.T) {
	// GIVEN: one 10-minute short break taken
	// WHEN: reading remaining allowances
	// THEN: only enabled types appear, with usage subtracted

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "short", "")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)

	usages, err := f.svc.RemainingAllowances(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, usages, 2)

	byType := make(map[string]engine.Usage)
	for _, u := range usages {
		byType[u.BreakType] = u
	}

	assert.Equal(t, 1, byType["lunch"].RemainingCount)
	assert.Equal(t, 2, byType["short"].RemainingCount)
	assert.Equal(t, 35, byType["short"].RemainingMinutes)
}

// =============================================================================
// ENTRY LOGGING
// =============================================================================

func TestLogCall_ValidatesOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.LogCall(ctx, "u-1", session.ID, "answered", "sale", "")
	require.NoError(t, err)

	_, err = f.svc.LogCall(ctx, "u-1", session.ID, "shouted", "sale", "")
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = f.svc.LogCall(ctx, "u-1", session.ID, "answered", "", "")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestLogCall_ClosedSessionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	_, err = f.svc.ClockOut(ctx, session.ID, "u-1")
	require.NoError(t, err)

	_, err = f.svc.LogCall(ctx, "u-1", session.ID, "answered", "sale", "")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestLogDeposit_PositiveAmountsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.LogDeposit(ctx, "u-1", session.ID, decimal.NewFromFloat(125.50), "ref-1", "")
	require.NoError(t, err)

	_, err = f.svc.LogDeposit(ctx, "u-1", session.ID, decimal.Zero, "ref-2", "")
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = f.svc.LogDeposit(ctx, "u-1", session.ID, decimal.NewFromInt(-5), "ref-3", "")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// AGGREGATION READS
// =============================================================================

func TestSessionSummary_FullDay(t *testing.T) {
	// GIVEN: a closed 8-hour session with one 15-minute break
	// WHEN: reading the summary
	// THEN: 480 total / 15 break / 465 clean

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	entry, err := f.svc.StartBreak(ctx, session.ID, "u-1", "short", "")
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)
	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)

	f.clock.Advance(6*time.Hour + 45*time.Minute)
	_, err = f.svc.ClockOut(ctx, session.ID, "u-1")
	require.NoError(t, err)

	summary, err := f.svc.SessionSummary(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, 480, summary.TotalDurationMinutes)
	assert.Equal(t, 15, summary.TotalBreakMinutes)
	assert.Equal(t, 465, summary.CleanWorkMinutes)
	assert.Equal(t, map[string]int{"short": 1}, summary.BreakCounts)
}

func TestUserStats_DefaultsToToday(t *testing.T) {
	// GIVEN: a day of activity
	// WHEN: reading stats with a zero range
	// THEN: the range is today in the org timezone and totals match

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)

	_, err = f.svc.LogCall(ctx, "u-1", session.ID, "answered", "sale", "")
	require.NoError(t, err)
	_, err = f.svc.LogCall(ctx, "u-1", session.ID, "answered", "sale", "")
	require.NoError(t, err)
	_, err = f.svc.LogDeposit(ctx, "u-1", session.ID, decimal.NewFromFloat(100.25), "r1", "")
	require.NoError(t, err)
	_, err = f.svc.LogDeposit(ctx, "u-1", session.ID, decimal.NewFromFloat(50.75), "r2", "")
	require.NoError(t, err)

	stats, err := f.svc.UserStats(ctx, "u-1", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, 2, stats.TotalDepositsCount)
	assert.True(t, stats.TotalDepositsAmount.Equal(decimal.NewFromInt(151)),
		"expected 151.00, got %s", stats.TotalDepositsAmount)
	assert.Equal(t, 1, stats.TotalSessions)
}

func TestUserStats_InvertedRangeRejected(t *testing.T) {
	f := newFixture(t)

	from := utc(2025, time.March, 10, 0, 0)
	to := utc(2025, time.March, 9, 0, 0)
	_, err := f.svc.UserStats(context.Background(), "u-1", from, to)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestOrgKpis_CountsOpenSessionsAndBreaks(t *testing.T) {
	// GIVEN: two users clocked in, one on break
	// WHEN: reading org KPIs
	// THEN: active 2, on break 1, entries totalled org-wide

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveProfile(ctx, engine.Profile{
		ID: "u-2", Username: "bo", FullName: "Bo Lind", Role: engine.RoleCSR, IsActive: true,
	}))

	s1, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	s2, err := f.svc.ClockIn(ctx, "u-2")
	require.NoError(t, err)

	_, err = f.svc.StartBreak(ctx, s2.ID, "u-2", "short", "")
	require.NoError(t, err)

	_, err = f.svc.LogCall(ctx, "u-1", s1.ID, "answered", "sale", "")
	require.NoError(t, err)
	_, err = f.svc.LogDeposit(ctx, "u-2", s2.ID, decimal.NewFromInt(40), "r", "")
	require.NoError(t, err)

	kpis, err := f.svc.OrgKpis(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, kpis.ActiveSessions)
	assert.Equal(t, 1, kpis.OnBreakCount)
	assert.Equal(t, 1, kpis.TotalCalls)
	assert.Equal(t, 1, kpis.TotalDepositsCount)
	assert.True(t, kpis.TotalDepositsAmount.Equal(decimal.NewFromInt(40)))
}

func TestHistory_MostRecentFirstWithCounts(t *testing.T) {
	// GIVEN: two closed sessions with different activity
	// WHEN: reading history
	// THEN: newest first, each with its nested counts

	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	_, err = f.svc.LogCall(ctx, "u-1", first.ID, "answered", "sale", "")
	require.NoError(t, err)
	f.clock.Advance(4 * time.Hour)
	_, err = f.svc.ClockOut(ctx, first.ID, "u-1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	second, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	entry, err := f.svc.StartBreak(ctx, second.ID, "u-1", "short", "")
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.EndBreak(ctx, entry.ID, "u-1")
	require.NoError(t, err)
	f.clock.Advance(3 * time.Hour)
	_, err = f.svc.ClockOut(ctx, second.ID, "u-1")
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, second.ID, history[0].Session.ID)
	assert.Equal(t, 1, history[0].BreakCount)
	assert.Equal(t, 0, history[0].CallCount)
	assert.Equal(t, first.ID, history[1].Session.ID)
	assert.Equal(t, 1, history[1].CallCount)
}

func TestLiveSessions_ReportsBreakState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.ClockIn(ctx, "u-1")
	require.NoError(t, err)
	_, err = f.svc.StartBreak(ctx, session.ID, "u-1", "lunch", "")
	require.NoError(t, err)

	live, err := f.svc.LiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)

	assert.Equal(t, "Ana Ruiz", live[0].FullName)
	assert.True(t, live[0].OnBreak)
	assert.Equal(t, "lunch", live[0].BreakType)
	require.NotNil(t, live[0].BreakSince)
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

func TestRegister_CreatesCSRProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.svc.Register(ctx, "u-9", "cleo", "Cleo Park")
	require.NoError(t, err)

	assert.Equal(t, engine.RoleCSR, profile.Role)
	assert.True(t, profile.IsActive)

	_, err = f.svc.Register(ctx, "u-9", "cleo", "Cleo Park")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestSetRole_ValidatesRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetRole(ctx, "u-1", engine.RoleAdmin))

	profile, err := f.store.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, engine.RoleAdmin, profile.Role)

	err = f.svc.SetRole(ctx, "u-1", "superuser")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestUpdateSettings_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good := engine.DefaultSettings()
	good.ResetMode = engine.ResetWeeklyFixed
	good.Timezone = "Europe/Madrid"
	require.NoError(t, f.svc.UpdateSettings(ctx, good))

	bad := engine.DefaultSettings()
	bad.ResetMode = "monthly"
	assert.ErrorIs(t, f.svc.UpdateSettings(ctx, bad), engine.ErrValidation)

	bad = engine.DefaultSettings()
	bad.Timezone = "Mars/Olympus"
	assert.ErrorIs(t, f.svc.UpdateSettings(ctx, bad), engine.ErrValidation)

	bad = engine.DefaultSettings()
	bad.ResetMode = engine.ResetPayPeriod
	bad.PeriodDays = 0
	assert.ErrorIs(t, f.svc.UpdateSettings(ctx, bad), engine.ErrValidation)
}

func TestUpdateAllowance_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.UpdateAllowance(ctx, engine.BreakAllowance{
		BreakType: "training", MaxCount: 1, MaxMinutes: 60, IsEnabled: true,
	}))

	err := f.svc.UpdateAllowance(ctx, engine.BreakAllowance{BreakType: " "})
	assert.ErrorIs(t, err, engine.ErrValidation)

	err = f.svc.UpdateAllowance(ctx, engine.BreakAllowance{BreakType: "x", MaxCount: -1})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

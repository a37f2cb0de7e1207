// Package store provides an in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/shift-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of engine.Store
// =============================================================================

// Memory holds everything in maps under one RWMutex. Conditional inserts
// check their invariant under the write lock, giving the same atomic
// "check then insert" the SQLite store gets from partial unique indexes.
type Memory struct {
	txMu sync.Mutex // serializes WithTx blocks
	mu   sync.RWMutex

	sessions   map[engine.SessionID]engine.WorkSession
	breaks     map[engine.BreakID]engine.BreakEntry
	calls      []engine.CallEntry
	deposits   []engine.DepositEntry
	allowances map[string]engine.BreakAllowance
	options    map[string]engine.CallOption
	profiles   map[engine.UserID]engine.Profile
	settings   engine.OrgSettings
}

func NewMemory() *Memory {
	return &Memory{
		sessions:   make(map[engine.SessionID]engine.WorkSession),
		breaks:     make(map[engine.BreakID]engine.BreakEntry),
		allowances: make(map[string]engine.BreakAllowance),
		options:    make(map[string]engine.CallOption),
		profiles:   make(map[engine.UserID]engine.Profile),
		settings:   engine.DefaultSettings(),
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) CreateSession(_ context.Context, s engine.WorkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.UserID == s.UserID && existing.IsOpen() {
			return &engine.ConflictError{Reason: "user already has an open session"}
		}
	}
	if _, ok := m.sessions[s.ID]; ok {
		return &engine.ConflictError{Reason: "duplicate session id"}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id engine.SessionID) (*engine.WorkSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) OpenSession(_ context.Context, userID engine.UserID) (*engine.WorkSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.UserID == userID && s.IsOpen() {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateSession(_ context.Context, s engine.WorkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return &engine.NotFoundError{Kind: "session", ID: string(s.ID)}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) SessionsInRange(_ context.Context, userID engine.UserID, from, to time.Time) ([]engine.WorkSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.WorkSession
	for _, s := range m.sessions {
		if s.UserID == userID && !s.ClockInAt.Before(from) && s.ClockInAt.Before(to) {
			out = append(out, s)
		}
	}
	sortSessionsDesc(out)
	return out, nil
}

func (m *Memory) RecentSessions(_ context.Context, userID engine.UserID, limit int) ([]engine.WorkSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.WorkSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sortSessionsDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) OpenSessions(_ context.Context) ([]engine.WorkSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.WorkSession
	for _, s := range m.sessions {
		if s.IsOpen() {
			out = append(out, s)
		}
	}
	sortSessionsDesc(out)
	return out, nil
}

func sortSessionsDesc(sessions []engine.WorkSession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ClockInAt.After(sessions[j].ClockInAt)
	})
}

// =============================================================================
// BREAKS
// =============================================================================

func (m *Memory) CreateBreak(_ context.Context, b engine.BreakEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.breaks {
		if existing.SessionID == b.SessionID && existing.IsOpen() {
			return &engine.ConflictError{Reason: "session already has an open break"}
		}
	}
	if _, ok := m.breaks[b.ID]; ok {
		return &engine.ConflictError{Reason: "duplicate break id"}
	}
	m.breaks[b.ID] = b
	return nil
}

func (m *Memory) GetBreak(_ context.Context, id engine.BreakID) (*engine.BreakEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.breaks[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *Memory) UpdateBreak(_ context.Context, b engine.BreakEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.breaks[b.ID]; !ok {
		return &engine.NotFoundError{Kind: "break", ID: string(b.ID)}
	}
	m.breaks[b.ID] = b
	return nil
}

func (m *Memory) BreaksBySession(_ context.Context, sessionID engine.SessionID) ([]engine.BreakEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.BreakEntry
	for _, b := range m.breaks {
		if b.SessionID == sessionID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *Memory) BreaksInWindow(_ context.Context, userID engine.UserID, breakType string, from, to time.Time) ([]engine.BreakEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.BreakEntry
	for _, b := range m.breaks {
		if b.UserID == userID && b.BreakType == breakType &&
			!b.StartAt.Before(from) && b.StartAt.Before(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *Memory) OpenBreak(_ context.Context, sessionID engine.SessionID) (*engine.BreakEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.breaks {
		if b.SessionID == sessionID && b.IsOpen() {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

// =============================================================================
// CALL / DEPOSIT ENTRIES
// =============================================================================

func (m *Memory) CreateCall(_ context.Context, c engine.CallEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return nil
}

func (m *Memory) CreateDeposit(_ context.Context, d engine.DepositEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits = append(m.deposits, d)
	return nil
}

func (m *Memory) CountCalls(_ context.Context, userID engine.UserID, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.calls {
		if userID != "" && c.UserID != userID {
			continue
		}
		if !c.OccurredAt.Before(from) && c.OccurredAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) SumDeposits(_ context.Context, userID engine.UserID, from, to time.Time) (int, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	total := decimal.Zero
	for _, d := range m.deposits {
		if userID != "" && d.UserID != userID {
			continue
		}
		if !d.OccurredAt.Before(from) && d.OccurredAt.Before(to) {
			count++
			total = total.Add(d.Amount)
		}
	}
	return count, total, nil
}

func (m *Memory) CountBySession(_ context.Context, sessionID engine.SessionID) (int, int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls, deposits, breaks := 0, 0, 0
	for _, c := range m.calls {
		if c.SessionID == sessionID {
			calls++
		}
	}
	for _, d := range m.deposits {
		if d.SessionID == sessionID {
			deposits++
		}
	}
	for _, b := range m.breaks {
		if b.SessionID == sessionID {
			breaks++
		}
	}
	return calls, deposits, breaks, nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (m *Memory) Allowances(_ context.Context) ([]engine.BreakAllowance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.BreakAllowance, 0, len(m.allowances))
	for _, a := range m.allowances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BreakType < out[j].BreakType })
	return out, nil
}

func (m *Memory) SaveAllowance(_ context.Context, a engine.BreakAllowance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[a.BreakType] = a
	return nil
}

func (m *Memory) Settings(_ context.Context) (engine.OrgSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s engine.OrgSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *Memory) CallOptions(_ context.Context, kind engine.CallOptionKind) ([]engine.CallOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.CallOption
	for _, o := range m.options {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *Memory) SaveCallOption(_ context.Context, o engine.CallOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[o.ID] = o
	return nil
}

// =============================================================================
// PROFILES
// =============================================================================

func (m *Memory) GetProfile(_ context.Context, id engine.UserID) (*engine.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.profiles[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) SaveProfile(_ context.Context, p engine.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *Memory) ListProfiles(_ context.Context) ([]engine.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx serializes the block against other transactions and restores a
// snapshot if fn fails, so a failed multi-step transition leaves no trace.
func (m *Memory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	sessions   map[engine.SessionID]engine.WorkSession
	breaks     map[engine.BreakID]engine.BreakEntry
	calls      []engine.CallEntry
	deposits   []engine.DepositEntry
	allowances map[string]engine.BreakAllowance
	options    map[string]engine.CallOption
	profiles   map[engine.UserID]engine.Profile
	settings   engine.OrgSettings
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return memorySnapshot{
		sessions:   copyMap(m.sessions),
		breaks:     copyMap(m.breaks),
		calls:      append([]engine.CallEntry(nil), m.calls...),
		deposits:   append([]engine.DepositEntry(nil), m.deposits...),
		allowances: copyMap(m.allowances),
		options:    copyMap(m.options),
		profiles:   copyMap(m.profiles),
		settings:   m.settings,
	}
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = snap.sessions
	m.breaks = snap.breaks
	m.calls = snap.calls
	m.deposits = snap.deposits
	m.allowances = snap.allowances
	m.options = snap.options
	m.profiles = snap.profiles
	m.settings = snap.settings
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:

	Keeps JSON shapes out of the engine. Times are RFC3339 strings, deposit
	amounts are decimal strings (never floats), nullable instants are
	pointers that render as null.
*/
package api

import (
	"time"

	"github.com/warp/shift-engine/engine"
)

// =============================================================================
// RESPONSE DTOS
// =============================================================================

type SessionDTO struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	WorkDate   string  `json:"work_date"`
	ClockInAt  string  `json:"clock_in_at"`
	ClockOutAt *string `json:"clock_out_at"`
	Status     string  `json:"status"`
	Remarks    string  `json:"remarks,omitempty"`
}

type BreakDTO struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id"`
	BreakType string  `json:"break_type"`
	StartAt   string  `json:"start_at"`
	EndAt     *string `json:"end_at"`
	Notes     string  `json:"notes,omitempty"`
}

type SummaryDTO struct {
	SessionID            string         `json:"session_id"`
	TotalDurationMinutes int            `json:"total_duration_minutes"`
	TotalBreakMinutes    int            `json:"total_break_minutes"`
	CleanWorkMinutes     int            `json:"clean_work_minutes"`
	BreakCounts          map[string]int `json:"break_counts"`
	ComputedAt           string         `json:"computed_at"`
}

type UsageDTO struct {
	BreakType        string `json:"break_type"`
	MaxCount         int    `json:"max_count"`
	MaxMinutes       int    `json:"max_minutes"`
	UsedCount        int    `json:"used_count"`
	UsedMinutes      int    `json:"used_minutes"`
	RemainingCount   int    `json:"remaining_count"`
	RemainingMinutes int    `json:"remaining_minutes"`
	Available        bool   `json:"available"`
	WindowStart      string `json:"window_start"`
	WindowEnd        string `json:"window_end"`
}

type StatsDTO struct {
	TotalCalls          int    `json:"total_calls"`
	TotalDepositsCount  int    `json:"total_deposits_count"`
	TotalDepositsAmount string `json:"total_deposits_amount"`
	TotalBreakMinutes   int    `json:"total_break_minutes"`
	TotalSessions       int    `json:"total_sessions"`
	From                string `json:"from"`
	To                  string `json:"to"`
}

type KpisDTO struct {
	TotalCalls          int    `json:"total_calls"`
	TotalDepositsCount  int    `json:"total_deposits_count"`
	TotalDepositsAmount string `json:"total_deposits_amount"`
	ActiveSessions      int    `json:"active_sessions"`
	OnBreakCount        int    `json:"on_break_count"`
	ComputedAt          string `json:"computed_at"`
}

type HistoryDTO struct {
	Session      SessionDTO `json:"session"`
	CallCount    int        `json:"call_count"`
	DepositCount int        `json:"deposit_count"`
	BreakCount   int        `json:"break_count"`
}

type LiveSessionDTO struct {
	Session    SessionDTO `json:"session"`
	FullName   string     `json:"full_name"`
	OnBreak    bool       `json:"on_break"`
	BreakType  string     `json:"break_type,omitempty"`
	BreakSince *string    `json:"break_since,omitempty"`
}

type ProfileDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

type SettingsDTO struct {
	Timezone             string `json:"timezone"`
	BreakResetMode       string `json:"break_reset_mode"`
	WeekStart            int    `json:"week_start"`
	PeriodDays           int    `json:"period_days"`
	PeriodEpoch          string `json:"period_epoch"`
	RollingWindowSeconds int    `json:"rolling_window_seconds"`
}

type AllowanceDTO struct {
	BreakType  string `json:"break_type"`
	MaxCount   int    `json:"max_count"`
	MaxMinutes int    `json:"max_minutes"`
	IsEnabled  bool   `json:"is_enabled"`
}

type CallOptionDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	SortOrder int    `json:"sort_order"`
	IsEnabled bool   `json:"is_enabled"`
}

// =============================================================================
// REQUEST DTOS
// =============================================================================

type StartBreakRequest struct {
	BreakType string `json:"break_type"`
	Notes     string `json:"notes"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type RemarksRequest struct {
	Remarks string `json:"remarks"`
}

type LogCallRequest struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Outcome   string `json:"outcome"`
	Notes     string `json:"notes"`
}

type LogDepositRequest struct {
	SessionID string `json:"session_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

type UpdateProfileRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

type RegisterRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toSessionDTO(s engine.WorkSession) SessionDTO {
	return SessionDTO{
		ID:         string(s.ID),
		UserID:     string(s.UserID),
		WorkDate:   s.WorkDate,
		ClockInAt:  s.ClockInAt.Format(time.RFC3339),
		ClockOutAt: timePtr(s.ClockOutAt),
		Status:     string(s.Status),
		Remarks:    s.Remarks,
	}
}

func toBreakDTO(b engine.BreakEntry) BreakDTO {
	return BreakDTO{
		ID:        string(b.ID),
		SessionID: string(b.SessionID),
		BreakType: b.BreakType,
		StartAt:   b.StartAt.Format(time.RFC3339),
		EndAt:     timePtr(b.EndAt),
		Notes:     b.Notes,
	}
}

func toUsageDTO(u engine.Usage) UsageDTO {
	return UsageDTO{
		BreakType:        u.BreakType,
		MaxCount:         u.MaxCount,
		MaxMinutes:       u.MaxMinutes,
		UsedCount:        u.UsedCount,
		UsedMinutes:      u.UsedMinutes,
		RemainingCount:   u.RemainingCount,
		RemainingMinutes: u.RemainingMinutes,
		Available:        u.Available(),
		WindowStart:      u.Window.Start.Format(time.RFC3339),
		WindowEnd:        u.Window.End.Format(time.RFC3339),
	}
}

func toProfileDTO(p engine.Profile) ProfileDTO {
	return ProfileDTO{
		ID:       string(p.ID),
		Username: p.Username,
		FullName: p.FullName,
		Role:     string(p.Role),
		IsActive: p.IsActive,
	}
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

/*
handlers.go - HTTP API handlers for the shift accounting engine

PURPOSE:

	Exposes the shift/break engine via REST API. Handles HTTP
	request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:

	Sessions:
	  POST   /api/sessions                  Clock in
	  POST   /api/sessions/{id}/clock-out   Clock out (auto-closes open break)
	  PUT    /api/sessions/{id}/remarks     Update remarks (open session only)
	  GET    /api/sessions/{id}/summary     Session summary
	  POST   /api/sessions/{id}/breaks      Start a typed break

	Breaks:
	  POST   /api/breaks/{id}/end           End break
	  PUT    /api/breaks/{id}/notes         Update notes (open break only)

	Activity:
	  POST   /api/calls                     Log a call
	  POST   /api/deposits                  Log a deposit

	Me:
	  GET    /api/me/allowances             Remaining break allowances
	  GET    /api/me/stats                  User stats (optional from/to)
	  GET    /api/me/sessions               Session history (last N)

	Admin:
	  GET    /api/admin/kpis                Org-wide KPIs for today
	  GET    /api/admin/sessions/open      Live open sessions
	  GET/PUT /api/admin/settings           Org settings
	  GET/PUT /api/admin/allowances         Break allowances
	  GET/PUT /api/admin/call-options       Call status/outcome options
	  GET    /api/admin/profiles            List profiles
	  PUT    /api/admin/profiles/{id}       Change role / active flag

ERROR HANDLING:

	Engine errors are translated to JSON with appropriate HTTP status:
	- 400: Validation errors, invalid input
	- 404: Not found (includes ownership failures)
	- 409: Conflict (double clock-in, closing a closed entity)
	- 422: Break quota exhausted
	- 500: Storage errors

SEE ALSO:
  - dto.go: Request/response data structures
  - identity.go: Caller extraction middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/shift-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the API dependencies.
type Handler struct {
	Service *engine.Service
}

func NewHandler(svc *engine.Service) *Handler {
	return &Handler{Service: svc}
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// ClockIn opens a work session for the caller.
// POST /api/sessions
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())

	session, err := h.Service.ClockIn(r.Context(), caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(*session))
}

// ClockOut closes the caller's session, auto-closing any open break.
// POST /api/sessions/{id}/clock-out
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	sessionID := engine.SessionID(chi.URLParam(r, "id"))

	session, err := h.Service.ClockOut(r.Context(), sessionID, caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(*session))
}

// UpdateRemarks replaces the remarks on the caller's open session.
// PUT /api/sessions/{id}/remarks
func (h *Handler) UpdateRemarks(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	sessionID := engine.SessionID(chi.URLParam(r, "id"))

	var req RemarksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Service.UpdateRemarks(r.Context(), sessionID, caller.UserID, req.Remarks); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// GetSummary computes the summary of one session.
// GET /api/sessions/{id}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := engine.SessionID(chi.URLParam(r, "id"))

	summary, err := h.Service.SessionSummary(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		SessionID:            string(summary.SessionID),
		TotalDurationMinutes: summary.TotalDurationMinutes,
		TotalBreakMinutes:    summary.TotalBreakMinutes,
		CleanWorkMinutes:     summary.CleanWorkMinutes,
		BreakCounts:          summary.BreakCounts,
		ComputedAt:           summary.ComputedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// BREAK ENDPOINTS
// =============================================================================

// StartBreak opens a typed break on the caller's session, enforcing quotas.
// POST /api/sessions/{id}/breaks
func (h *Handler) StartBreak(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	sessionID := engine.SessionID(chi.URLParam(r, "id"))

	var req StartBreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Service.StartBreak(r.Context(), sessionID, caller.UserID, req.BreakType, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBreakDTO(*entry))
}

// EndBreak closes the caller's open break.
// POST /api/breaks/{id}/end
func (h *Handler) EndBreak(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	breakID := engine.BreakID(chi.URLParam(r, "id"))

	entry, err := h.Service.EndBreak(r.Context(), breakID, caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakDTO(*entry))
}

// UpdateBreakNotes replaces the notes on the caller's open break.
// PUT /api/breaks/{id}/notes
func (h *Handler) UpdateBreakNotes(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	breakID := engine.BreakID(chi.URLParam(r, "id"))

	var req NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Service.UpdateBreakNotes(r.Context(), breakID, caller.UserID, req.Notes); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// =============================================================================
// ACTIVITY ENDPOINTS
// =============================================================================

// LogCall records one handled call against the caller's open session.
// POST /api/calls
func (h *Handler) LogCall(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())

	var req LogCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Service.LogCall(r.Context(), caller.UserID, engine.SessionID(req.SessionID), req.Status, req.Outcome, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": string(entry.ID)})
}

// LogDeposit records one deposit against the caller's open session.
// POST /api/deposits
func (h *Handler) LogDeposit(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())

	var req LogDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	entry, err := h.Service.LogDeposit(r.Context(), caller.UserID, engine.SessionID(req.SessionID), amount, req.Reference, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": string(entry.ID)})
}

// =============================================================================
// ME ENDPOINTS
// =============================================================================

// GetAllowances returns the caller's remaining break allowances for the
// current window.
// GET /api/me/allowances
func (h *Handler) GetAllowances(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())

	usages, err := h.Service.RemainingAllowances(r.Context(), caller.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]UsageDTO, 0, len(usages))
	for _, u := range usages {
		dtos = append(dtos, toUsageDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStats returns the caller's stats over an optional from/to range.
// Defaults to today in the org timezone.
// GET /api/me/stats?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())

	var from, to time.Time
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		// Inclusive end date: range is half-open on the following midnight.
		to = t.AddDate(0, 0, 1)
	}

	stats, err := h.Service.UserStats(r.Context(), caller.UserID, from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		TotalCalls:          stats.TotalCalls,
		TotalDepositsCount:  stats.TotalDepositsCount,
		TotalDepositsAmount: stats.TotalDepositsAmount.String(),
		TotalBreakMinutes:   stats.TotalBreakMinutes,
		TotalSessions:       stats.TotalSessions,
		From:                stats.From.Format(time.RFC3339),
		To:                  stats.To.Format(time.RFC3339),
	})
}

// GetHistory returns the caller's most recent sessions with entry counts.
// GET /api/me/sessions?limit=N
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	history, err := h.Service.History(r.Context(), caller.UserID, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]HistoryDTO, 0, len(history))
	for _, item := range history {
		dtos = append(dtos, HistoryDTO{
			Session:      toSessionDTO(item.Session),
			CallCount:    item.CallCount,
			DepositCount: item.DepositCount,
			BreakCount:   item.BreakCount,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// GetKpis returns today's org-wide KPIs.
// GET /api/admin/kpis
func (h *Handler) GetKpis(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.Service.OrgKpis(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KpisDTO{
		TotalCalls:          kpis.TotalCalls,
		TotalDepositsCount:  kpis.TotalDepositsCount,
		TotalDepositsAmount: kpis.TotalDepositsAmount.String(),
		ActiveSessions:      kpis.ActiveSessions,
		OnBreakCount:        kpis.OnBreakCount,
		ComputedAt:          kpis.ComputedAt.Format(time.RFC3339),
	})
}

// GetLiveSessions returns all currently open sessions with break status.
// GET /api/admin/sessions/open
func (h *Handler) GetLiveSessions(w http.ResponseWriter, r *http.Request) {
	live, err := h.Service.LiveSessions(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]LiveSessionDTO, 0, len(live))
	for _, ls := range live {
		dtos = append(dtos, LiveSessionDTO{
			Session:    toSessionDTO(ls.Session),
			FullName:   ls.FullName,
			OnBreak:    ls.OnBreak,
			BreakType:  ls.BreakType,
			BreakSince: timePtr(ls.BreakSince),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSettings returns the org settings.
// GET /api/admin/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Service.Settings(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{
		Timezone:             settings.Timezone,
		BreakResetMode:       string(settings.ResetMode),
		WeekStart:            int(settings.WeekStart),
		PeriodDays:           settings.PeriodDays,
		PeriodEpoch:          settings.PeriodEpoch.Format("2006-01-02"),
		RollingWindowSeconds: int(settings.RollingWindow.Seconds()),
	})
}

// UpdateSettings replaces the org settings.
// PUT /api/admin/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	epoch, err := time.Parse("2006-01-02", req.PeriodEpoch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_epoch (use YYYY-MM-DD)", err)
		return
	}

	settings := engine.OrgSettings{
		Timezone:      req.Timezone,
		ResetMode:     engine.ResetMode(req.BreakResetMode),
		WeekStart:     time.Weekday(req.WeekStart),
		PeriodDays:    req.PeriodDays,
		PeriodEpoch:   epoch,
		RollingWindow: time.Duration(req.RollingWindowSeconds) * time.Second,
	}
	if err := h.Service.UpdateSettings(r.Context(), settings); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// GetAdminAllowances returns every configured allowance.
// GET /api/admin/allowances
func (h *Handler) GetAdminAllowances(w http.ResponseWriter, r *http.Request) {
	allowances, err := h.Service.Allowances(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]AllowanceDTO, 0, len(allowances))
	for _, a := range allowances {
		dtos = append(dtos, AllowanceDTO{
			BreakType:  a.BreakType,
			MaxCount:   a.MaxCount,
			MaxMinutes: a.MaxMinutes,
			IsEnabled:  a.IsEnabled,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateAllowance creates or replaces one break type's allowance.
// PUT /api/admin/allowances
func (h *Handler) UpdateAllowance(w http.ResponseWriter, r *http.Request) {
	var req AllowanceDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a := engine.BreakAllowance{
		BreakType:  req.BreakType,
		MaxCount:   req.MaxCount,
		MaxMinutes: req.MaxMinutes,
		IsEnabled:  req.IsEnabled,
	}
	if err := h.Service.UpdateAllowance(r.Context(), a); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// GetCallOptions returns all call status/outcome options.
// GET /api/admin/call-options
func (h *Handler) GetCallOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.Service.CallOptions(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]CallOptionDTO, 0, len(options))
	for _, opt := range options {
		dtos = append(dtos, CallOptionDTO{
			ID:        opt.ID,
			Kind:      string(opt.Kind),
			Value:     opt.Value,
			SortOrder: opt.SortOrder,
			IsEnabled: opt.IsEnabled,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveCallOption creates or replaces one call status/outcome option.
// PUT /api/admin/call-options
func (h *Handler) SaveCallOption(w http.ResponseWriter, r *http.Request) {
	var req CallOptionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	opt := engine.CallOption{
		ID:        req.ID,
		Kind:      engine.CallOptionKind(req.Kind),
		Value:     req.Value,
		SortOrder: req.SortOrder,
		IsEnabled: req.IsEnabled,
	}
	if err := h.Service.SaveCallOption(r.Context(), opt); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// ListProfiles returns every profile.
// GET /api/admin/profiles
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Service.Profiles(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]ProfileDTO, 0, len(profiles))
	for _, p := range profiles {
		dtos = append(dtos, toProfileDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateProfile changes a profile's role and/or active flag.
// PUT /api/admin/profiles/{id}
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := engine.UserID(chi.URLParam(r, "id"))

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Role == nil && req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update", nil)
		return
	}

	if req.Role != nil {
		if err := h.Service.SetRole(r.Context(), id, engine.Role(*req.Role)); err != nil {
			writeEngineError(w, err)
			return
		}
	}
	if req.IsActive != nil {
		if err := h.Service.SetActive(r.Context(), id, *req.IsActive); err != nil {
			writeEngineError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// Register creates a CSR profile for a new user.
// POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profile, err := h.Service.Register(r.Context(), engine.UserID(req.ID), req.Username, req.FullName)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileDTO(*profile))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error categories onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrQuotaExceeded):
		writeError(w, http.StatusUnprocessableEntity, "Break quota exhausted", err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

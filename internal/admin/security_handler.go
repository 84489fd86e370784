package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/audit"
	authmw "github.com/akilapilapitiya/TrueGate-sub001/internal/auth/middleware"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/httpx"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/middleware"
)

// SecurityHandler serves the admin-only audit log query surface. Every
// response uses the {success:true, data:...} envelope. The log is append-only:
// there is no mutation or deletion route.
type SecurityHandler struct {
	store    *audit.Store
	recorder *audit.Recorder
	logger   *zap.Logger
}

func NewSecurityHandler(store *audit.Store, recorder *audit.Recorder, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{store: store, recorder: recorder, logger: logger}
}

func pageParams(r *http.Request) (page, perPage int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("limit"))
	return page, perPage
}

type eventPage struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
}

func (h *SecurityHandler) respond(w http.ResponseWriter, events []audit.Event, total int, err error) {
	if err != nil {
		h.logger.Error("security event query failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	httpx.Success(w, eventPage{Events: events, Total: total})
}

// ListEvents returns a page of all events, newest first.
func (h *SecurityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	events, total, err := h.store.List(r.Context(), page, perPage)
	h.respond(w, events, total, err)
}

// HighRisk returns HIGH-risk events.
func (h *SecurityHandler) HighRisk(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	events, total, err := h.store.HighRisk(r.Context(), page, perPage)
	h.respond(w, events, total, err)
}

// ByCategory returns events in a category (csrf|auth).
func (h *SecurityHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if category != audit.CategoryCSRF && category != audit.CategoryAuth {
		httpx.Error(w, http.StatusBadRequest, "Unknown category")
		return
	}

	page, perPage := pageParams(r)
	events, total, err := h.store.ByCategory(r.Context(), category, page, perPage)
	h.respond(w, events, total, err)
}

// ByIP returns events from one actor IP.
func (h *SecurityHandler) ByIP(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	events, total, err := h.store.ByIP(r.Context(), r.PathValue("ip"), page, perPage)
	h.respond(w, events, total, err)
}

// ByUser returns events attached to one user email.
func (h *SecurityHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	events, total, err := h.store.ByEmail(r.Context(), r.PathValue("email"), page, perPage)
	h.respond(w, events, total, err)
}

// Stats aggregates counts by level, type, and risk over a window. The window
// defaults to 24 hours and is bounded by the `hours` query parameter.
func (h *SecurityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	if hours < 1 || hours > 24*30 {
		hours = 24
	}

	stats, err := h.store.StatsSince(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		h.logger.Error("security stats failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	httpx.Success(w, stats)
}

type logEventRequest struct {
	Level   audit.Level     `json:"level"`
	Type    audit.EventType `json:"type"`
	Risk    audit.Risk      `json:"risk"`
	Email   string          `json:"email"`
	Details map[string]any  `json:"details"`
}

// LogEvent lets an admin append a manual event to the trail.
func (h *SecurityHandler) LogEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Level == "" {
		req.Level = audit.LevelAudit
	}
	if req.Type == "" {
		req.Type = audit.EventAdminLogged
	}
	if req.Risk == "" {
		req.Risk = audit.RiskLow
	}

	identity, _ := authmw.Identity(r.Context())
	if req.Details == nil {
		req.Details = map[string]any{}
	}
	req.Details["loggedBy"] = identity.Email

	h.recorder.Record(audit.NewEvent(req.Level, req.Type, req.Risk,
		middleware.ClientIP(r), r.UserAgent(), req.Email, req.Details))

	httpx.Success(w, map[string]string{"message": "Event recorded"})
}

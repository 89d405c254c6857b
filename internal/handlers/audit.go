package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AuditQueries is the audit service contract used by the HTTP layer
type AuditQueries interface {
	RecordExternalEvent(ctx context.Context, entry *models.AuditLogEntry) error
	GetUserAuditLogs(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error)
	GetRecentFailedLogins(ctx context.Context, email string, hoursBack int) ([]*models.AuditLogEntry, error)
	GetAuditLogStats(ctx context.Context, timeRangeHours int) (*models.AuditLogStats, error)
}

// ActivityDetector runs the suspicious-activity heuristics for one identity
type ActivityDetector interface {
	Detect(ctx context.Context, email string) (*models.SuspiciousActivityReport, error)
}

// AuditHandler handles audit ingestion and admin audit queries
type AuditHandler struct {
	audit    AuditQueries
	detector ActivityDetector
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewAuditHandler(audit AuditQueries, detector ActivityDetector, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:    audit,
		detector: detector,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// RecordEvent handles POST /v1/audit/events
func (h *AuditHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req AuditEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	eventType := models.AuthEventType(req.EventType)
	if !eventType.Valid() {
		pkghttp.WriteBadRequest(w, "validation failed: EventType: unknown event type")
		return
	}

	rc := requestContext(r, h.ipConfig, req.ClientInfo)
	entry := &models.AuditLogEntry{
		UserID:       optionalString(req.UserID),
		Email:        optionalString(req.Email),
		EventType:    eventType,
		IPAddress:    optionalString(rc.IPAddress),
		UserAgent:    optionalString(rc.UserAgent),
		Location:     optionalString(rc.Location),
		Metadata:     req.Metadata,
		Success:      req.Success,
		ErrorMessage: optionalString(req.ErrorMessage),
	}

	if err := h.audit.RecordExternalEvent(r.Context(), entry); err != nil {
		writeServiceError(w, h.logger, "audit ingestion", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// UserLogs handles GET /v1/admin/audit/users/{id}?limit=N
func (h *AuditHandler) UserLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return
	}

	entries, err := h.audit.GetUserAuditLogs(r.Context(), id, queryInt(r, "limit"))
	if err != nil {
		writeServiceError(w, h.logger, "audit log query", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AuditLogListResponse{Entries: entries, Count: len(entries)})
}

// FailedLogins handles GET /v1/admin/audit/failed-logins?email=...&hours=N
func (h *AuditHandler) FailedLogins(w http.ResponseWriter, r *http.Request) {
	email, ok := queryEmail(w, r)
	if !ok {
		return
	}

	entries, err := h.audit.GetRecentFailedLogins(r.Context(), email, queryInt(r, "hours"))
	if err != nil {
		writeServiceError(w, h.logger, "failed login query", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AuditLogListResponse{Entries: entries, Count: len(entries)})
}

// Suspicious handles GET /v1/admin/audit/suspicious?email=...
func (h *AuditHandler) Suspicious(w http.ResponseWriter, r *http.Request) {
	email, ok := queryEmail(w, r)
	if !ok {
		return
	}

	report, err := h.detector.Detect(r.Context(), email)
	if err != nil {
		writeServiceError(w, h.logger, "suspicious activity detection", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, report)
}

// Stats handles GET /v1/admin/audit/stats?hours=N
func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.GetAuditLogStats(r.Context(), queryInt(r, "hours"))
	if err != nil {
		writeServiceError(w, h.logger, "audit stats", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// queryInt returns 0 for a missing or malformed parameter so the service default applies
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func queryEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := r.URL.Query().Get("email")
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		pkghttp.WriteBadRequest(w, "email query parameter must be a valid email address")
		return "", false
	}
	return email, true
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// BruteForceGuard is the lockout contract used by the guard and admin handlers
type BruteForceGuard interface {
	Check(ctx context.Context, email string) (*models.BruteForceStatus, error)
	RecordFailedLoginAttempt(ctx context.Context, email string, rc models.RequestContext) (*models.FailedAttemptResult, error)
	RecordSuccessfulLogin(ctx context.Context, userID, email string, rc models.RequestContext) error
	UnlockUserAccount(ctx context.Context, userID, adminID string) error
	GetProfileStatus(ctx context.Context, userID string) (*models.ProfileStatus, error)
}

// GuardHandler exposes the brute-force guard to the login service
type GuardHandler struct {
	guard    BruteForceGuard
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewGuardHandler creates a new GuardHandler
func NewGuardHandler(guard BruteForceGuard, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *GuardHandler {
	return &GuardHandler{
		guard:    guard,
		ipConfig: ipConfig,
		logger:   logger,
		now:      time.Now,
	}
}

// Check handles POST /v1/guard/check. A locked identity gets 423 with Retry-After.
func (h *GuardHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req GuardCheckRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	status, err := h.guard.Check(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, h.logger, "guard check", err)
		return
	}

	if !status.Allowed && status.LockedUntil != nil {
		pkghttp.WriteAccountLocked(w, *status.LockedUntil, h.now())
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, GuardCheckResponse{
		Allowed:           status.Allowed,
		AttemptsRemaining: status.AttemptsRemaining,
		ShouldDelayMs:     status.ShouldDelay.Milliseconds(),
	})
}

// RecordFailure handles POST /v1/guard/failures
func (h *GuardHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	var req RecordFailureRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.guard.RecordFailedLoginAttempt(r.Context(), req.Email, requestContext(r, h.ipConfig, req.ClientInfo))
	if err != nil {
		writeServiceError(w, h.logger, "record failed login", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RecordFailureResponse{
		Recorded:    result.ProfileFound,
		Attempts:    result.Attempts,
		Locked:      result.Locked,
		LockedUntil: result.LockedUntil,
	})
}

// RecordSuccess handles POST /v1/guard/successes
func (h *GuardHandler) RecordSuccess(w http.ResponseWriter, r *http.Request) {
	var req RecordSuccessRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.guard.RecordSuccessfulLogin(r.Context(), req.UserID, req.Email, requestContext(r, h.ipConfig, req.ClientInfo)); err != nil {
		writeServiceError(w, h.logger, "record successful login", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

const backupCodesMessage = "Store these backup codes somewhere safe. They will not be shown again."

// TwoFactorManager is the 2FA service contract
type TwoFactorManager interface {
	GenerateSecret(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	Enable(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error)
	Disable(ctx context.Context, userID, email, password string, rc models.RequestContext) error
	VerifyForLogin(ctx context.Context, userID, email, token string, rc models.RequestContext) (*models.TwoFactorVerification, error)
	RegenerateBackupCodes(ctx context.Context, userID, email, password string, rc models.RequestContext) (*models.BackupCodeSet, error)
	GetStatus(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

// TwoFactorHandler handles 2FA enrollment, management and login verification
type TwoFactorHandler struct {
	svc      TwoFactorManager
	timing   *auth.TimingDelay
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler. timing may be nil.
func NewTwoFactorHandler(svc TwoFactorManager, timing *auth.TimingDelay, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		svc:      svc,
		timing:   timing,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

func (h *TwoFactorHandler) currentUser(w http.ResponseWriter, r *http.Request) *auth.Claims {
	claims := auth.GetUserFromContext(r)
	if claims == nil || claims.UserID() == "" {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return nil
	}
	return claims
}

// Setup handles POST /v1/2fa/setup. Nothing is stored until Enable succeeds.
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	setup, err := h.svc.GenerateSecret(r.Context(), user.UserID(), user.Email)
	if err != nil {
		writeServiceError(w, h.logger, "2fa setup", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// Enable handles POST /v1/2fa/enable
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req EnableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	codes, err := h.svc.Enable(r.Context(), user.UserID(), user.Email, req.Secret, req.Code, requestContext(r, h.ipConfig, ClientInfo{}))
	if err != nil {
		h.timing.WaitFrom(r.Context(), start, false)
		writeServiceError(w, h.logger, "2fa enable", err)
		return
	}

	h.writeBackupCodes(w, codes)
}

// Disable handles POST /v1/2fa/disable
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req PasswordConfirmationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.Disable(r.Context(), user.UserID(), user.Email, req.Password, requestContext(r, h.ipConfig, ClientInfo{})); err != nil {
		h.timing.WaitFrom(r.Context(), start, false)
		writeServiceError(w, h.logger, "2fa disable", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegenerateBackupCodes handles POST /v1/2fa/backup-codes
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req PasswordConfirmationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	codes, err := h.svc.RegenerateBackupCodes(r.Context(), user.UserID(), user.Email, req.Password, requestContext(r, h.ipConfig, ClientInfo{}))
	if err != nil {
		h.timing.WaitFrom(r.Context(), start, false)
		writeServiceError(w, h.logger, "backup code regeneration", err)
		return
	}

	h.writeBackupCodes(w, codes)
}

// Status handles GET /v1/2fa/status
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	status, err := h.svc.GetStatus(r.Context(), user.UserID())
	if err != nil {
		writeServiceError(w, h.logger, "2fa status", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Verify handles POST /v1/2fa/verify, called by the login service after the password step
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req VerifyTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.VerifyForLogin(r.Context(), req.UserID, req.Email, req.Code, requestContext(r, h.ipConfig, req.ClientInfo))
	if err != nil {
		h.timing.WaitFrom(r.Context(), start, false)
		writeServiceError(w, h.logger, "2fa verification", err)
		return
	}

	if !result.Success {
		h.timing.WaitFrom(r.Context(), start, false)
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Invalid verification code")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

func (h *TwoFactorHandler) writeBackupCodes(w http.ResponseWriter, codes *models.BackupCodeSet) {
	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{
		BackupCodes: codes.Reveal(),
		Message:     backupCodesMessage,
	})
}

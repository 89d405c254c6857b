package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProfileProvisioner creates security profiles for new identities
type ProfileProvisioner interface {
	Provision(ctx context.Context, userID, email string, rc models.RequestContext) (*models.SecurityProfile, error)
}

// ProfileHandler handles security profile provisioning and administration
type ProfileHandler struct {
	provisioner ProfileProvisioner
	guard       BruteForceGuard
	ipConfig    *pkghttp.IPConfig
	logger      *slog.Logger
}

func NewProfileHandler(provisioner ProfileProvisioner, guard BruteForceGuard, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		provisioner: provisioner,
		guard:       guard,
		ipConfig:    ipConfig,
		logger:      logger,
	}
}

// Provision handles POST /v1/profiles
func (h *ProfileHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req ProvisionProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	profile, err := h.provisioner.Provision(r.Context(), req.UserID, req.Email, requestContext(r, h.ipConfig, req.ClientInfo))
	if err != nil {
		writeServiceError(w, h.logger, "profile provisioning", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, models.ProfileStatus{
		UserID:           profile.ID,
		Email:            profile.Email,
		TwoFactorEnabled: profile.TwoFactorEnabled,
	})
}

// Get handles GET /v1/admin/profiles/{id}
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	status, err := h.guard.GetProfileStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "profile lookup", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Unlock handles POST /v1/admin/profiles/{id}/unlock
func (h *ProfileHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetUserFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	id, ok := profileID(w, r)
	if !ok {
		return
	}

	if err := h.guard.UnlockUserAccount(r.Context(), id, admin.UserID()); err != nil {
		writeServiceError(w, h.logger, "account unlock", err)
		return
	}

	h.logger.Info("account unlocked by admin",
		slog.String("user_id", id),
		slog.String("admin_id", admin.UserID()),
	)
	w.WriteHeader(http.StatusNoContent)
}

func profileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid profile id")
		return "", false
	}
	return id, true
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// writeServiceError maps service sentinels onto HTTP responses. Messages stay generic.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrInvalidCredential):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Invalid verification code")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteError(w, http.StatusConflict, "two_factor_not_enabled", "Two-factor authentication is not enabled")
	case errors.Is(err, models.ErrInfrastructure):
		logger.Error(op+" failed", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		logger.Error(op+" failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

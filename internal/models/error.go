package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// Account security taxonomy
	ErrPolicyDenied      = errors.New("account is temporarily locked")
	ErrInvalidCredential = errors.New("invalid password")
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrInfrastructure    = errors.New("security store unavailable")

	// Two-factor state errors
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
)

// ErrAccountLocked is the lockout-specific name for ErrPolicyDenied
var ErrAccountLocked = ErrPolicyDenied

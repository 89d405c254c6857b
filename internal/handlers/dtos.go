package handlers

import (
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// Guard DTOs

// ClientInfo is the end-user connection detail a calling service forwards
type ClientInfo struct {
	IPAddress string `json:"ip_address" validate:"omitempty,ip"`
	UserAgent string `json:"user_agent" validate:"omitempty,max=512"`
	Location  string `json:"location" validate:"omitempty,max=255"`
}

// GuardCheckRequest asks whether a login attempt may proceed
type GuardCheckRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// GuardCheckResponse is the guard decision. should_delay_ms is advisory.
type GuardCheckResponse struct {
	Allowed           bool  `json:"allowed"`
	AttemptsRemaining int   `json:"attempts_remaining"`
	ShouldDelayMs     int64 `json:"should_delay_ms"`
}

// RecordFailureRequest reports a rejected credential
type RecordFailureRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	ClientInfo
}

// RecordFailureResponse describes the counter after the failure
type RecordFailureResponse struct {
	Recorded    bool       `json:"recorded"`
	Attempts    int        `json:"attempts"`
	Locked      bool       `json:"locked"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// RecordSuccessRequest reports an accepted credential
type RecordSuccessRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Email  string `json:"email" validate:"required,email,max=255"`
	ClientInfo
}

// Profile DTOs

// ProvisionProfileRequest creates the security profile of a new identity
type ProvisionProfileRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Email  string `json:"email" validate:"required,email,max=255"`
	ClientInfo
}

// 2FA DTOs

// EnableTwoFactorRequest proves possession of a freshly generated secret
type EnableTwoFactorRequest struct {
	Secret string `json:"secret" validate:"required,min=16,max=128,alphanum"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// PasswordConfirmationRequest re-authenticates before a sensitive 2FA change
type PasswordConfirmationRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// BackupCodesResponse carries plaintext backup codes. They are shown exactly once.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
	Message     string   `json:"message"`
}

// VerifyTwoFactorRequest checks the second factor during login. Code is a 6-digit
// TOTP code or a backup code.
type VerifyTwoFactorRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Email  string `json:"email" validate:"omitempty,email,max=255"`
	Code   string `json:"code" validate:"required,min=6,max=20"`
	ClientInfo
}

// Audit DTOs

// AuditEventRequest is an event reported by a collaborating service
type AuditEventRequest struct {
	EventType    string               `json:"event_type" validate:"required,max=64"`
	UserID       string               `json:"user_id" validate:"omitempty,uuid"`
	Email        string               `json:"email" validate:"omitempty,email,max=255"`
	Success      bool                 `json:"success"`
	ErrorMessage string               `json:"error_message" validate:"omitempty,max=1024"`
	Metadata     models.AuditMetadata `json:"metadata"`
	ClientInfo
}

// AuditLogListResponse wraps a page of audit entries
type AuditLogListResponse struct {
	Entries []*models.AuditLogEntry `json:"entries"`
	Count   int                     `json:"count"`
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuthEventType identifies an authentication event in the audit trail
type AuthEventType string

// Event types for audit logging. The set is fixed; stored and transmitted as plain strings.
const (
	EventLoginSuccess           AuthEventType = "login_success"
	EventLoginFailed            AuthEventType = "login_failed"
	EventLogout                 AuthEventType = "logout"
	EventPasswordResetRequested AuthEventType = "password_reset_requested"
	EventPasswordResetCompleted AuthEventType = "password_reset_completed"
	EventPasswordChanged        AuthEventType = "password_changed"
	EventEmailChanged           AuthEventType = "email_changed"
	Event2FAEnabled             AuthEventType = "2fa_enabled"
	Event2FADisabled            AuthEventType = "2fa_disabled"
	Event2FAVerified            AuthEventType = "2fa_verified"
	EventOAuthConnected         AuthEventType = "oauth_connected"
	EventOAuthDisconnected      AuthEventType = "oauth_disconnected"
	EventSessionRevoked         AuthEventType = "session_revoked"
	EventAccountLocked          AuthEventType = "account_locked"
	EventAccountUnlocked        AuthEventType = "account_unlocked"
	EventRegistration           AuthEventType = "registration"
	EventEmailVerified          AuthEventType = "email_verified"
)

var knownEventTypes = map[AuthEventType]struct{}{
	EventLoginSuccess:           {},
	EventLoginFailed:            {},
	EventLogout:                 {},
	EventPasswordResetRequested: {},
	EventPasswordResetCompleted: {},
	EventPasswordChanged:        {},
	EventEmailChanged:           {},
	Event2FAEnabled:             {},
	Event2FADisabled:            {},
	Event2FAVerified:            {},
	EventOAuthConnected:         {},
	EventOAuthDisconnected:      {},
	EventSessionRevoked:         {},
	EventAccountLocked:          {},
	EventAccountUnlocked:        {},
	EventRegistration:           {},
	EventEmailVerified:          {},
}

// Valid reports whether the event type belongs to the audit taxonomy
func (t AuthEventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

func (t AuthEventType) String() string {
	return string(t)
}

// LoginEventTypes are the events that represent a login attempt (used for IP correlation)
var LoginEventTypes = []AuthEventType{EventLoginSuccess, EventLoginFailed, EventAccountLocked}

// FailedLoginEventTypes are the events that represent a rejected credential.
// The attempt that trips the lockout is recorded as account_locked instead of login_failed.
var FailedLoginEventTypes = []AuthEventType{EventLoginFailed, EventAccountLocked}

// AuditLogEntry is a single immutable row in the audit trail
type AuditLogEntry struct {
	ID                uuid.UUID     `json:"id"`
	UserID            *string       `json:"user_id,omitempty"`
	Email             *string       `json:"email,omitempty"`
	EventType         AuthEventType `json:"event_type"`
	IPAddress         *string       `json:"ip_address,omitempty"`
	UserAgent         *string       `json:"user_agent,omitempty"`
	DeviceFingerprint *string       `json:"device_fingerprint,omitempty"`
	Location          *string       `json:"location,omitempty"`
	Metadata          AuditMetadata `json:"metadata,omitempty"`
	Success           bool          `json:"success"`
	ErrorMessage      *string       `json:"error_message,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// AuditLogFilter selects audit entries. Zero-valued fields are not applied.
type AuditLogFilter struct {
	UserID     string
	Email      string
	EventTypes []AuthEventType
	Success    *bool
	Since      time.Time
	Limit      int
}

// AuditLogStats aggregates audit events over a time window
type AuditLogStats struct {
	TimeRangeHours   int   `json:"time_range_hours"`
	TotalLogins      int64 `json:"total_logins"`
	FailedLogins     int64 `json:"failed_logins"`
	SuccessfulLogins int64 `json:"successful_logins"`
	UniqueUsers      int64 `json:"unique_users"`
	PasswordResets   int64 `json:"password_resets"`
	AccountLockouts  int64 `json:"account_lockouts"`
}

// SuspiciousActivityReport is the advisory result of a suspicious-activity scan
type SuspiciousActivityReport struct {
	Email        string    `json:"email"`
	IsSuspicious bool      `json:"is_suspicious"`
	Reasons      []string  `json:"reasons"`
	WindowStart  time.Time `json:"window_start"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(am))
}

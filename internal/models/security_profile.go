package models

import (
	"time"
)

// SecurityProfile holds the lockout counters and two-factor state of one identity.
// Profiles are provisioned at registration and never deleted by this service.
type SecurityProfile struct {
	ID                  string
	Email               string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastFailedLoginAt   *time.Time
	TwoFactorEnabled    bool
	TwoFactorSecret     *string  // base32, present iff TwoFactorEnabled
	TwoFactorVerifiedAt *time.Time
	BackupCodes         []string // SHA-256 hex hashes of unused recovery codes
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether a lock is in force at now
func (p *SecurityProfile) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && now.Before(*p.LockedUntil)
}

// LockExpired reports whether a lock was set but has run out at now
func (p *SecurityProfile) LockExpired(now time.Time) bool {
	return p.LockedUntil != nil && !now.Before(*p.LockedUntil)
}

// FailuresStale reports whether the last failure is older than the reset window
func (p *SecurityProfile) FailuresStale(now time.Time, resetWindow time.Duration) bool {
	return p.LastFailedLoginAt != nil && now.Sub(*p.LastFailedLoginAt) > resetWindow
}

// ProfileStatus is the admin-facing view of a profile. It never carries the TOTP secret.
type ProfileStatus struct {
	UserID               string     `json:"user_id"`
	Email                string     `json:"email"`
	FailedLoginAttempts  int        `json:"failed_login_attempts"`
	LockedUntil          *time.Time `json:"locked_until,omitempty"`
	LastFailedLoginAt    *time.Time `json:"last_failed_login_at,omitempty"`
	TwoFactorEnabled     bool       `json:"two_factor_enabled"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

// BruteForceStatus is the guard decision for a login attempt
type BruteForceStatus struct {
	Allowed           bool
	AttemptsRemaining int
	LockedUntil       *time.Time
	ShouldDelay       time.Duration
}

// FailedAttemptResult describes the effect of recording one failed login
type FailedAttemptResult struct {
	ProfileFound bool
	Attempts     int
	Locked       bool
	LockedUntil  *time.Time
}

// RequestContext carries the optional client details attached to audit entries
type RequestContext struct {
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Location          string
}

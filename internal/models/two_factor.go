package models

import (
	"sync"
	"time"
)

// TwoFactorSetup is the enrollment material produced by secret generation.
// It is never persisted and cannot be reconstructed from a stored profile.
type TwoFactorSetup struct {
	Secret         string `json:"secret"`
	ManualEntryKey string `json:"manual_entry_key"`
	OTPAuthURL     string `json:"otpauth_url"`
	QRCode         string `json:"qr_code"` // data URL (PNG)
}

// BackupCodeSet holds freshly generated plaintext recovery codes.
// Reveal hands them out once; every later call returns nil.
type BackupCodeSet struct {
	mu    sync.Mutex
	codes []string
}

// NewBackupCodeSet wraps plaintext codes for one-time disclosure
func NewBackupCodeSet(codes []string) *BackupCodeSet {
	c := make([]string, len(codes))
	copy(c, codes)
	return &BackupCodeSet{codes: c}
}

// Reveal returns the plaintext codes and forgets them
func (s *BackupCodeSet) Reveal() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.codes
	s.codes = nil
	return codes
}

// Len reports how many codes are still held
func (s *BackupCodeSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// TwoFactorVerification is the outcome of a login-time second factor check
type TwoFactorVerification struct {
	Success              bool `json:"success"`
	UsedBackupCode       bool `json:"used_backup_code"`
	RemainingBackupCodes int  `json:"remaining_backup_codes"`
}

// TwoFactorStatus is the caller-facing 2FA state. The secret is intentionally absent.
type TwoFactorStatus struct {
	Enabled              bool       `json:"enabled"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

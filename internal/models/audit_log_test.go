package models

import (
	"testing"
	"time"
)

func TestAuthEventType_Valid(t *testing.T) {
	known := []AuthEventType{
		EventLoginSuccess, EventLoginFailed, EventLogout,
		EventPasswordResetRequested, EventPasswordResetCompleted, EventPasswordChanged,
		EventEmailChanged, Event2FAEnabled, Event2FADisabled, Event2FAVerified,
		EventOAuthConnected, EventOAuthDisconnected, EventSessionRevoked,
		EventAccountLocked, EventAccountUnlocked, EventRegistration, EventEmailVerified,
	}
	for _, et := range known {
		if !et.Valid() {
			t.Errorf("expected %q to be valid", et)
		}
	}

	for _, et := range []AuthEventType{"", "LOGIN_SUCCESS", "api_key_used", "login"} {
		if et.Valid() {
			t.Errorf("expected %q to be invalid", et)
		}
	}
}

func TestAuditMetadata_ValueScanRoundTrip(t *testing.T) {
	in := AuditMetadata{"method": "backup_code", "remaining_backup_codes": 7}

	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out AuditMetadata
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out["method"] != "backup_code" {
		t.Errorf("expected method backup_code, got %v", out["method"])
	}
	// JSON numbers decode as float64
	if out["remaining_backup_codes"] != float64(7) {
		t.Errorf("expected remaining_backup_codes 7, got %v", out["remaining_backup_codes"])
	}
}

func TestAuditMetadata_NilValueIsEmptyObject(t *testing.T) {
	var am AuditMetadata
	v, err := am.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if string(v.([]byte)) != "{}" {
		t.Errorf("expected {}, got %s", v)
	}

	if err := am.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if am == nil {
		t.Error("expected empty map after scanning NULL")
	}

	if err := am.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestSecurityProfile_LockState(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name        string
		lockedUntil *time.Time
		locked      bool
		expired     bool
	}{
		{"no lock", nil, false, false},
		{"lock in force", &future, true, false},
		{"lock ran out", &past, false, true},
		{"lock ends now", &now, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SecurityProfile{LockedUntil: tt.lockedUntil}
			if got := p.IsLocked(now); got != tt.locked {
				t.Errorf("IsLocked = %v, want %v", got, tt.locked)
			}
			if got := p.LockExpired(now); got != tt.expired {
				t.Errorf("LockExpired = %v, want %v", got, tt.expired)
			}
		})
	}
}

func TestSecurityProfile_FailuresStale(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Minute)
	old := now.Add(-61 * time.Minute)

	if (&SecurityProfile{}).FailuresStale(now, time.Hour) {
		t.Error("profile without failures cannot be stale")
	}
	if (&SecurityProfile{LastFailedLoginAt: &recent}).FailuresStale(now, time.Hour) {
		t.Error("30 minute old failure should not be stale")
	}
	if !(&SecurityProfile{LastFailedLoginAt: &old}).FailuresStale(now, time.Hour) {
		t.Error("61 minute old failure should be stale")
	}
}

func TestBackupCodeSet_RevealOnce(t *testing.T) {
	src := []string{"AAAA-BBBB", "CCCC-DDDD"}
	set := NewBackupCodeSet(src)
	src[0] = "mutated"

	if set.Len() != 2 {
		t.Fatalf("expected 2 codes, got %d", set.Len())
	}

	codes := set.Reveal()
	if len(codes) != 2 || codes[0] != "AAAA-BBBB" {
		t.Errorf("unexpected codes %v", codes)
	}
	if again := set.Reveal(); again != nil {
		t.Errorf("expected nil on second reveal, got %v", again)
	}
	if set.Len() != 0 {
		t.Errorf("expected 0 codes after reveal, got %d", set.Len())
	}

	var nilSet *BackupCodeSet
	if nilSet.Reveal() != nil || nilSet.Len() != 0 {
		t.Error("nil set should reveal nothing")
	}
}

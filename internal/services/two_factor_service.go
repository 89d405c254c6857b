package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
)

const defaultBackupCodeCount = 8

// TwoFactorStore is the persistence contract for 2FA state
type TwoFactorStore interface {
	GetByID(ctx context.Context, id string) (*models.SecurityProfile, error)
	EnableTwoFactor(ctx context.Context, id, secret string, backupCodeHashes []string, verifiedAt time.Time) error
	DisableTwoFactor(ctx context.Context, id string, now time.Time) error
	ReplaceBackupCodes(ctx context.Context, id string, backupCodeHashes []string, now time.Time) error
	ConsumeBackupCode(ctx context.Context, id, hash string, now time.Time) (remaining int, consumed bool, err error)
}

// TOTPEngine generates and validates TOTP material
type TOTPEngine interface {
	GenerateSetup(email string) (*models.TwoFactorSetup, error)
	Validate(code, secret string) bool
	GenerateBackupCodes(count int) ([]string, error)
}

// PasswordVerifier re-authenticates a user before sensitive 2FA changes.
// It returns models.ErrInvalidCredential on a wrong password.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID, password string) error
}

// SecretSealer protects TOTP secrets at rest. Open must accept anything Seal returned.
type SecretSealer interface {
	Seal(secret string) (string, error)
	Open(stored string) (string, error)
}

// plaintextSecrets stores secrets as given
type plaintextSecrets struct{}

func (plaintextSecrets) Seal(secret string) (string, error) { return secret, nil }
func (plaintextSecrets) Open(stored string) (string, error) { return stored, nil }

// TwoFactorService implements TOTP enrollment, login verification and backup codes
type TwoFactorService struct {
	repo            TwoFactorStore
	totp            TOTPEngine
	passwords       PasswordVerifier
	audit           AuditRecorder
	secrets         SecretSealer
	logger          *slog.Logger
	backupCodeCount int
	now             func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(repo TwoFactorStore, totp TOTPEngine, passwords PasswordVerifier, audit AuditRecorder, backupCodeCount int, logger *slog.Logger) *TwoFactorService {
	if backupCodeCount <= 0 {
		backupCodeCount = defaultBackupCodeCount
	}
	return &TwoFactorService{
		repo:            repo,
		totp:            totp,
		passwords:       passwords,
		audit:           audit,
		secrets:         plaintextSecrets{},
		logger:          logger,
		backupCodeCount: backupCodeCount,
		now:             time.Now,
	}
}

// WithSecretSealer encrypts secrets written by Enable and decrypts them on login
func (s *TwoFactorService) WithSecretSealer(sealer SecretSealer) *TwoFactorService {
	if sealer != nil {
		s.secrets = sealer
	}
	return s
}

// GenerateSecret creates enrollment material. Nothing is stored until Enable succeeds.
func (s *TwoFactorService) GenerateSecret(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	setup, err := s.totp.GenerateSetup(email)
	if err != nil {
		s.logger.Error("failed to generate 2FA secret",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to generate 2FA secret: %w", err)
	}
	return setup, nil
}

// VerifyToken checks a 6-digit code against secret
func (s *TwoFactorService) VerifyToken(token, secret string) bool {
	return s.totp.Validate(token, secret)
}

// Enable activates 2FA once token proves possession of secret and returns the
// plaintext backup codes for one-time display
func (s *TwoFactorService) Enable(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error) {
	if !s.totp.Validate(token, secret) {
		entry := newAuditEntry(models.Event2FAEnabled, userID, email, rc, false, nil)
		entry.ErrorMessage = optional(models.ErrInvalidCode.Error())
		s.audit.LogAuthEvent(ctx, entry)
		return nil, models.ErrInvalidCode
	}

	codes, err := s.totp.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	stored, err := s.secrets.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal 2FA secret: %w: %w", models.ErrInfrastructure, err)
	}

	if err := s.repo.EnableTwoFactor(ctx, userID, stored, auth.HashBackupCodes(codes), s.now()); err != nil {
		switch {
		case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrNotFound):
			return nil, err
		default:
			s.logger.Error("failed to enable 2FA",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("failed to enable 2FA: %w: %w", models.ErrInfrastructure, err)
		}
	}

	s.audit.LogAuthEvent(ctx, newAuditEntry(models.Event2FAEnabled, userID, email, rc, true, models.AuditMetadata{
		"backup_codes": len(codes),
	}))

	return models.NewBackupCodeSet(codes), nil
}

// checkPassword maps verifier results onto the error taxonomy
func (s *TwoFactorService) checkPassword(ctx context.Context, userID, password string) error {
	err := s.passwords.VerifyPassword(ctx, userID, password)
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrInvalidCredential) || errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("password re-authentication failed", slog.String("user_id", userID))
		return models.ErrInvalidCredential
	}
	return fmt.Errorf("failed to verify password: %w: %w", models.ErrInfrastructure, err)
}

// Disable turns 2FA off after password re-authentication
func (s *TwoFactorService) Disable(ctx context.Context, userID, email, password string, rc models.RequestContext) error {
	if err := s.checkPassword(ctx, userID, password); err != nil {
		return err
	}

	if err := s.repo.DisableTwoFactor(ctx, userID, s.now()); err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnabled), errors.Is(err, models.ErrNotFound):
			return models.ErrTwoFactorNotEnabled
		default:
			return fmt.Errorf("failed to disable 2FA: %w: %w", models.ErrInfrastructure, err)
		}
	}

	s.audit.LogAuthEvent(ctx, newAuditEntry(models.Event2FADisabled, userID, email, rc, true, nil))
	return nil
}

// VerifyForLogin checks the second factor. A TOTP code is tried first, then the
// token is treated as a backup code and consumed if it matches.
func (s *TwoFactorService) VerifyForLogin(ctx context.Context, userID, email, token string, rc models.RequestContext) (*models.TwoFactorVerification, error) {
	profile, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnabled
		}
		return nil, fmt.Errorf("failed to load security profile: %w: %w", models.ErrInfrastructure, err)
	}

	if !profile.TwoFactorEnabled || profile.TwoFactorSecret == nil {
		return nil, models.ErrTwoFactorNotEnabled
	}

	secret, err := s.secrets.Open(*profile.TwoFactorSecret)
	if err != nil {
		s.logger.Error("failed to open stored 2FA secret",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to open 2FA secret: %w: %w", models.ErrInfrastructure, err)
	}

	if s.totp.Validate(token, secret) {
		s.audit.LogAuthEvent(ctx, newAuditEntry(models.Event2FAVerified, userID, email, rc, true, models.AuditMetadata{
			"method": "totp",
		}))
		return &models.TwoFactorVerification{
			Success:              true,
			RemainingBackupCodes: len(profile.BackupCodes),
		}, nil
	}

	if auth.NormalizeBackupCode(token) != "" {
		remaining, consumed, err := s.repo.ConsumeBackupCode(ctx, userID, auth.HashBackupCode(token), s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to consume backup code: %w: %w", models.ErrInfrastructure, err)
		}
		if consumed {
			s.audit.LogAuthEvent(ctx, newAuditEntry(models.Event2FAVerified, userID, email, rc, true, models.AuditMetadata{
				"method":                 "backup_code",
				"remaining_backup_codes": remaining,
			}))
			if remaining == 0 {
				s.logger.Warn("last backup code consumed", slog.String("user_id", userID))
			}
			return &models.TwoFactorVerification{
				Success:              true,
				UsedBackupCode:       true,
				RemainingBackupCodes: remaining,
			}, nil
		}
	}

	entry := newAuditEntry(models.Event2FAVerified, userID, email, rc, false, models.AuditMetadata{
		"method": "none",
	})
	entry.ErrorMessage = optional(models.ErrInvalidCode.Error())
	s.audit.LogAuthEvent(ctx, entry)

	return &models.TwoFactorVerification{Success: false}, nil
}

// RegenerateBackupCodes replaces every backup code after password re-authentication
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, email, password string, rc models.RequestContext) (*models.BackupCodeSet, error) {
	if err := s.checkPassword(ctx, userID, password); err != nil {
		return nil, err
	}

	codes, err := s.totp.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	if err := s.repo.ReplaceBackupCodes(ctx, userID, auth.HashBackupCodes(codes), s.now()); err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnabled), errors.Is(err, models.ErrNotFound):
			return nil, models.ErrTwoFactorNotEnabled
		default:
			return nil, fmt.Errorf("failed to replace backup codes: %w: %w", models.ErrInfrastructure, err)
		}
	}

	s.audit.LogAuthEvent(ctx, newAuditEntry(models.Event2FAEnabled, userID, email, rc, true, models.AuditMetadata{
		"action":       "backup_codes_regenerated",
		"backup_codes": len(codes),
	}))

	return models.NewBackupCodeSet(codes), nil
}

// GetStatus reports whether 2FA is on and how many backup codes remain
func (s *TwoFactorService) GetStatus(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	profile, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load security profile: %w: %w", models.ErrInfrastructure, err)
	}

	return &models.TwoFactorStatus{
		Enabled:              profile.TwoFactorEnabled,
		VerifiedAt:           profile.TwoFactorVerifiedAt,
		BackupCodesRemaining: len(profile.BackupCodes),
	}, nil
}

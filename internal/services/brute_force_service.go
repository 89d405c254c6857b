package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
)

const notifyTimeout = 10 * time.Second

// SecurityProfileStore is the persistence contract for lockout state
type SecurityProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.SecurityProfile, error)
	GetByEmail(ctx context.Context, email string) (*models.SecurityProfile, error)
	ResetStaleCounter(ctx context.Context, email string, now, resetCutoff time.Time) (bool, error)
	IncrementFailedAttempts(ctx context.Context, email string, now, resetCutoff time.Time, maxAttempts int, lockUntil time.Time) (*models.SecurityProfile, error)
	ResetFailedAttempts(ctx context.Context, id string, now time.Time) error
}

// SecurityNotifier is told when an account becomes locked
type SecurityNotifier interface {
	NotifyAccountLocked(ctx context.Context, email string, lockedUntil time.Time, rc models.RequestContext) error
}

// BruteForceService implements the per-identity failed-attempt counter and lockout
type BruteForceService struct {
	repo     SecurityProfileStore
	audit    AuditRecorder
	notifier SecurityNotifier
	config   config.BruteForceConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewBruteForceService creates a new BruteForceService. notifier may be nil.
func NewBruteForceService(repo SecurityProfileStore, audit AuditRecorder, notifier SecurityNotifier, cfg config.BruteForceConfig, logger *slog.Logger) *BruteForceService {
	return &BruteForceService{
		repo:     repo,
		audit:    audit,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *BruteForceService) fullyAllowed() *models.BruteForceStatus {
	return &models.BruteForceStatus{
		Allowed:           true,
		AttemptsRemaining: s.config.MaxAttempts,
	}
}

// Check decides whether a login attempt for email may proceed.
// Unknown identities and read failures are allowed.
func (s *BruteForceService) Check(ctx context.Context, email string) (*models.BruteForceStatus, error) {
	profile, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("brute force check failed, allowing attempt",
				slog.String("email", logger.SanitizedEmail(email)),
				slog.Any("error", err),
			)
		}
		return s.fullyAllowed(), nil
	}

	return s.evaluate(ctx, profile, s.now()), nil
}

// evaluate is the single place lazy expiry is decided. Every read path goes through it.
func (s *BruteForceService) evaluate(ctx context.Context, p *models.SecurityProfile, now time.Time) *models.BruteForceStatus {
	if p.IsLocked(now) {
		lockedUntil := *p.LockedUntil
		return &models.BruteForceStatus{
			Allowed:           false,
			AttemptsRemaining: 0,
			LockedUntil:       &lockedUntil,
		}
	}

	if p.LockExpired(now) || p.FailuresStale(now, s.config.ResetWindow) {
		s.resetStale(ctx, p, now)
		return s.fullyAllowed()
	}

	remaining := s.config.MaxAttempts - p.FailedLoginAttempts
	if remaining < 0 {
		remaining = 0
	}

	return &models.BruteForceStatus{
		Allowed:           remaining > 0,
		AttemptsRemaining: remaining,
		ShouldDelay:       s.delayFor(p.FailedLoginAttempts),
	}
}

func (s *BruteForceService) delayFor(attempts int) time.Duration {
	delays := s.config.ProgressiveDelays
	if len(delays) == 0 {
		return 0
	}
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(delays) {
		attempts = len(delays) - 1
	}
	return delays[attempts]
}

func (s *BruteForceService) resetStale(ctx context.Context, p *models.SecurityProfile, now time.Time) {
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	p.LastFailedLoginAt = nil

	reset, err := s.repo.ResetStaleCounter(ctx, p.Email, now, now.Add(-s.config.ResetWindow))
	if err != nil {
		s.logger.Error("failed to reset stale failure counter",
			slog.String("user_id", p.ID),
			slog.Any("error", err),
		)
		return
	}
	if reset {
		s.logger.Debug("stale failure counter reset", slog.String("user_id", p.ID))
	}
}

// RecordFailedLoginAttempt counts one rejected credential for email and locks the
// profile when the threshold is reached
func (s *BruteForceService) RecordFailedLoginAttempt(ctx context.Context, email string, rc models.RequestContext) (*models.FailedAttemptResult, error) {
	now := s.now()
	lockUntil := now.Add(s.config.LockoutDuration)

	profile, err := s.repo.IncrementFailedAttempts(ctx, email, now, now.Add(-s.config.ResetWindow), s.config.MaxAttempts, lockUntil)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.LogAuthEvent(ctx, newAuditEntry(models.EventLoginFailed, "", email, rc, false, models.AuditMetadata{
				"reason": "unknown_identity",
			}))
			return &models.FailedAttemptResult{ProfileFound: false}, nil
		}

		s.logger.Error("failed to record failed login attempt",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err),
		)
		entry := newAuditEntry(models.EventLoginFailed, "", email, rc, false, models.AuditMetadata{
			"reason": "store_unavailable",
		})
		s.audit.LogAuthEvent(ctx, entry)
		return nil, fmt.Errorf("failed to record failed login attempt: %w: %w", models.ErrInfrastructure, err)
	}

	result := &models.FailedAttemptResult{
		ProfileFound: true,
		Attempts:     profile.FailedLoginAttempts,
		Locked:       profile.IsLocked(now),
		LockedUntil:  profile.LockedUntil,
	}

	if profile.FailedLoginAttempts >= s.config.MaxAttempts && profile.LockedUntil != nil {
		s.audit.LogAuthEvent(ctx, newAuditEntry(models.EventAccountLocked, profile.ID, profile.Email, rc, false, models.AuditMetadata{
			"attempts":        profile.FailedLoginAttempts,
			"locked_until":    profile.LockedUntil.UTC().Format(time.RFC3339),
			"lockout_minutes": int(s.config.LockoutDuration.Minutes()),
		}))

		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", profile.ID),
			slog.Int("attempts", profile.FailedLoginAttempts),
			slog.Time("locked_until", *profile.LockedUntil),
		)
		s.notifyLocked(ctx, profile.Email, *profile.LockedUntil, rc)
		return result, nil
	}

	remaining := s.config.MaxAttempts - profile.FailedLoginAttempts
	if remaining < 0 {
		remaining = 0
	}
	s.audit.LogAuthEvent(ctx, newAuditEntry(models.EventLoginFailed, profile.ID, profile.Email, rc, false, models.AuditMetadata{
		"attempts":           profile.FailedLoginAttempts,
		"attempts_remaining": remaining,
	}))

	return result, nil
}

// notifyLocked sends the lockout alert in the background. Delivery failures are logged only.
func (s *BruteForceService) notifyLocked(ctx context.Context, email string, lockedUntil time.Time, rc models.RequestContext) {
	if s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.NotifyAccountLocked(ctx, email, lockedUntil, rc); err != nil {
			s.logger.Error("failed to send lockout notification",
				slog.String("email", logger.SanitizedEmail(email)),
				slog.Any("error", err),
			)
		}
	}()
}

// RecordSuccessfulLogin clears the counter and lock for userID
func (s *BruteForceService) RecordSuccessfulLogin(ctx context.Context, userID, email string, rc models.RequestContext) error {
	err := s.repo.ResetFailedAttempts(ctx, userID, s.now())

	s.audit.LogAuthEvent(ctx, newAuditEntry(models.EventLoginSuccess, userID, email, rc, true, nil))

	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("successful login for identity without security profile",
				slog.String("user_id", userID),
			)
			return nil
		}
		s.logger.Error("failed to reset failed attempts",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to reset failed attempts: %w: %w", models.ErrInfrastructure, err)
	}
	return nil
}

// UnlockUserAccount clears the counter and lock on behalf of an administrator
func (s *BruteForceService) UnlockUserAccount(ctx context.Context, userID, adminID string) error {
	profile, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to load security profile: %w: %w", models.ErrInfrastructure, err)
	}

	if err := s.repo.ResetFailedAttempts(ctx, userID, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to unlock account: %w: %w", models.ErrInfrastructure, err)
	}

	s.audit.LogAuthEvent(ctx, newAuditEntry(models.EventAccountUnlocked, profile.ID, profile.Email, models.RequestContext{}, true, models.AuditMetadata{
		"unlocked_by":       adminID,
		"previous_attempts": profile.FailedLoginAttempts,
	}))

	s.logger.Info("account unlocked",
		slog.String("user_id", userID),
		slog.String("admin_id", adminID),
	)
	return nil
}

// GetProfileStatus returns the lockout and 2FA summary for userID after lazy expiry
func (s *BruteForceService) GetProfileStatus(ctx context.Context, userID string) (*models.ProfileStatus, error) {
	profile, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load security profile: %w: %w", models.ErrInfrastructure, err)
	}

	// evaluate clears the in-memory counters when it resets them
	s.evaluate(ctx, profile, s.now())

	return &models.ProfileStatus{
		UserID:               profile.ID,
		Email:                profile.Email,
		FailedLoginAttempts:  profile.FailedLoginAttempts,
		LockedUntil:          profile.LockedUntil,
		LastFailedLoginAt:    profile.LastFailedLoginAt,
		TwoFactorEnabled:     profile.TwoFactorEnabled,
		BackupCodesRemaining: len(profile.BackupCodes),
	}, nil
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// DetectionThresholds are the per-window limits above which activity is flagged
type DetectionThresholds struct {
	Window            time.Duration
	MaxDistinctIPs    int64
	MaxFailedLogins   int64
	MaxPasswordResets int64
}

// DefaultDetectionThresholds flags more than 3 IPs, 5 failures or 3 reset requests per hour
func DefaultDetectionThresholds() DetectionThresholds {
	return DetectionThresholds{
		Window:            time.Hour,
		MaxDistinctIPs:    3,
		MaxFailedLogins:   5,
		MaxPasswordResets: 3,
	}
}

// AuditLogReader is the read side of the audit store the detector needs
type AuditLogReader interface {
	Count(ctx context.Context, filter models.AuditLogFilter) (int64, error)
	CountDistinctIPs(ctx context.Context, filter models.AuditLogFilter) (int64, error)
}

// SuspiciousActivityDetector runs advisory heuristics over recent audit events.
// It never blocks or mutates anything.
type SuspiciousActivityDetector struct {
	repo       AuditLogReader
	thresholds DetectionThresholds
	now        func() time.Time
}

func NewSuspiciousActivityDetector(repo AuditLogReader, thresholds DetectionThresholds) *SuspiciousActivityDetector {
	return &SuspiciousActivityDetector{
		repo:       repo,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Detect evaluates the trailing window for email
func (d *SuspiciousActivityDetector) Detect(ctx context.Context, email string) (*models.SuspiciousActivityReport, error) {
	since := d.now().Add(-d.thresholds.Window)
	window := describeWindow(d.thresholds.Window)

	report := &models.SuspiciousActivityReport{
		Email:       email,
		Reasons:     []string{},
		WindowStart: since,
	}

	ips, err := d.repo.CountDistinctIPs(ctx, models.AuditLogFilter{
		Email:      email,
		EventTypes: models.LoginEventTypes,
		Since:      since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count login ip addresses: %w: %w", models.ErrInfrastructure, err)
	}
	if ips > d.thresholds.MaxDistinctIPs {
		report.Reasons = append(report.Reasons, fmt.Sprintf("Login attempts from %d different IP addresses in the %s", ips, window))
	}

	failed, err := d.repo.Count(ctx, models.AuditLogFilter{
		Email:      email,
		EventTypes: models.FailedLoginEventTypes,
		Since:      since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count failed logins: %w: %w", models.ErrInfrastructure, err)
	}
	if failed > d.thresholds.MaxFailedLogins {
		report.Reasons = append(report.Reasons, fmt.Sprintf("%d failed login attempts in the %s", failed, window))
	}

	resets, err := d.repo.Count(ctx, models.AuditLogFilter{
		Email:      email,
		EventTypes: []models.AuthEventType{models.EventPasswordResetRequested},
		Since:      since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count password resets: %w: %w", models.ErrInfrastructure, err)
	}
	if resets > d.thresholds.MaxPasswordResets {
		report.Reasons = append(report.Reasons, fmt.Sprintf("%d password reset requests in the %s", resets, window))
	}

	report.IsSuspicious = len(report.Reasons) > 0
	return report, nil
}

func describeWindow(w time.Duration) string {
	if w == time.Hour {
		return "last hour"
	}
	if w%time.Hour == 0 {
		return fmt.Sprintf("last %d hours", int(w/time.Hour))
	}
	return fmt.Sprintf("last %d minutes", int(w/time.Minute))
}

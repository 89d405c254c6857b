package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
)

const scanTimeout = 30 * time.Second

// FailureLister finds identities with recent failure events
type FailureLister interface {
	ListEmailsWithFailures(ctx context.Context, since time.Time, minEvents int) ([]string, error)
}

// ActivityDetector evaluates one identity
type ActivityDetector interface {
	Detect(ctx context.Context, email string) (*models.SuspiciousActivityReport, error)
}

// SuspiciousActivityScanner periodically runs the detector over identities with
// recent failures and logs the ones it flags
type SuspiciousActivityScanner struct {
	lister    FailureLister
	detector  ActivityDetector
	logger    *slog.Logger
	interval  time.Duration
	window    time.Duration
	minEvents int
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewSuspiciousActivityScanner creates a new scanner. Identities with fewer than
// minEvents failure events in window are skipped without running the detector.
func NewSuspiciousActivityScanner(
	lister FailureLister,
	detector ActivityDetector,
	logger *slog.Logger,
	interval, window time.Duration,
	minEvents int,
) *SuspiciousActivityScanner {
	if minEvents < 1 {
		minEvents = 1
	}
	return &SuspiciousActivityScanner{
		lister:    lister,
		detector:  detector,
		logger:    logger,
		interval:  interval,
		window:    window,
		minEvents: minEvents,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs a scan immediately and then on every tick until Stop or ctx ends
func (s *SuspiciousActivityScanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Scan(ctx)

	for {
		select {
		case <-ticker.C:
			s.Scan(ctx)
		case <-s.stopCh:
			s.logger.Info("suspicious activity scanner stopped")
			return
		case <-ctx.Done():
			s.logger.Info("suspicious activity scanner context cancelled")
			return
		}
	}
}

// Scan performs one pass and returns the flagged reports
func (s *SuspiciousActivityScanner) Scan(ctx context.Context) []*models.SuspiciousActivityReport {
	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	emails, err := s.lister.ListEmailsWithFailures(scanCtx, s.now().Add(-s.window), s.minEvents)
	if err != nil {
		s.logger.Error("failed to list identities for activity scan", slog.Any("error", err))
		return nil
	}

	flagged := make([]*models.SuspiciousActivityReport, 0)
	for _, email := range emails {
		report, err := s.detector.Detect(scanCtx, email)
		if err != nil {
			s.logger.Error("activity detection failed",
				slog.String("email", logger.SanitizedEmail(email)),
				slog.Any("error", err),
			)
			continue
		}
		if !report.IsSuspicious {
			continue
		}

		flagged = append(flagged, report)
		s.logger.Warn("suspicious activity detected",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("reasons", report.Reasons),
			slog.Time("window_start", report.WindowStart),
		)
	}

	if len(emails) > 0 {
		s.logger.Info("activity scan completed",
			slog.Int("identities_checked", len(emails)),
			slog.Int("identities_flagged", len(flagged)),
		)
	}
	return flagged
}

// Stop signals the scanner to stop. Safe to call more than once.
func (s *SuspiciousActivityScanner) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

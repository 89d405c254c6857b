package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
)

const (
	defaultAuditLimit  = 50
	maxAuditLimit      = 100
	defaultHoursBack   = 24
	maxHoursBack       = 24 * 365
	auditWriteTimeout  = 5 * time.Second
	failedLoginsMaxRow = 100
)

// AuditLogStore is the persistence contract for the audit trail
type AuditLogStore interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLogEntry, error)
	Count(ctx context.Context, filter models.AuditLogFilter) (int64, error)
	CountDistinctIPs(ctx context.Context, filter models.AuditLogFilter) (int64, error)
	Stats(ctx context.Context, since time.Time) (*models.AuditLogStats, error)
	ListEmailsWithFailures(ctx context.Context, since time.Time, minEvents int) ([]string, error)
}

// AuditRecorder is what the guard and the 2FA engine need from the audit log
type AuditRecorder interface {
	LogAuthEvent(ctx context.Context, entry *models.AuditLogEntry)
}

// AuditService appends to and queries the audit trail. Writes never fail the caller:
// when the store rejects an entry it goes to the local audit sink instead.
type AuditService struct {
	repo     AuditLogStore
	logger   *slog.Logger
	fallback *logger.AuditLogger
	now      func() time.Time
	timeout  time.Duration // per write, sync and async

	mu    sync.RWMutex
	queue chan *models.AuditLogEntry
	wg    sync.WaitGroup
}

// NewAuditService creates a new AuditService. Writes are synchronous until Start is called.
func NewAuditService(repo AuditLogStore, log *slog.Logger, fallback *logger.AuditLogger) *AuditService {
	return &AuditService{
		repo:     repo,
		logger:   log,
		fallback: fallback,
		now:      time.Now,
		timeout:  auditWriteTimeout,
	}
}

// Start switches to non-blocking writes through a bounded queue drained by one worker
func (s *AuditService) Start(queueSize int) {
	if queueSize < 1 {
		queueSize = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}

	s.queue = make(chan *models.AuditLogEntry, queueSize)
	s.wg.Add(1)
	go s.worker(s.queue)

	s.logger.Info("audit writer started", slog.Int("queue_size", queueSize))
}

// Stop drains queued entries and returns to synchronous writes
func (s *AuditService) Stop() {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	close(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("audit writer stopped")
}

func (s *AuditService) worker(queue <-chan *models.AuditLogEntry) {
	defer s.wg.Done()
	for entry := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		s.persist(ctx, entry)
		cancel()
	}
}

// LogAuthEvent appends one entry to the audit trail
func (s *AuditService) LogAuthEvent(ctx context.Context, entry *models.AuditLogEntry) {
	if entry == nil {
		return
	}
	prepareEntry(entry)

	if !entry.EventType.Valid() {
		s.fallbackLog(entry, "unknown event type")
		return
	}

	s.mu.RLock()
	queue := s.queue
	if queue != nil {
		select {
		case queue <- entry:
			s.mu.RUnlock()
			return
		default:
		}
	}
	s.mu.RUnlock()

	if queue != nil {
		s.fallbackLog(entry, "audit queue full")
		return
	}

	// Survives request cancellation but not the write timeout
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	s.persist(writeCtx, entry)
}

func (s *AuditService) persist(ctx context.Context, entry *models.AuditLogEntry) {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to persist audit log",
			slog.String("event_type", string(entry.EventType)),
			slog.Any("error", err),
		)
		s.fallbackLog(entry, "audit store unavailable")
	}
}

func (s *AuditService) fallbackLog(entry *models.AuditLogEntry, cause string) {
	if s.fallback == nil {
		return
	}
	s.fallback.LogFallback(logger.AuditEvent{
		EventType:     string(entry.EventType),
		UserID:        deref(entry.UserID),
		Email:         deref(entry.Email),
		IPAddress:     deref(entry.IPAddress),
		UserAgent:     deref(entry.UserAgent),
		Success:       entry.Success,
		FailureReason: deref(entry.ErrorMessage),
		Metadata:      entry.Metadata,
	}, cause)
}

// RecordExternalEvent accepts an event produced by a collaborating service
func (s *AuditService) RecordExternalEvent(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry == nil || !entry.EventType.Valid() {
		return fmt.Errorf("unknown event type: %w", models.ErrBadRequest)
	}
	s.LogAuthEvent(ctx, entry)
	return nil
}

// GetUserAuditLogs returns the newest entries for userID. limit is clamped to 1..100 (default 50).
func (s *AuditService) GetUserAuditLogs(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error) {
	entries, err := s.repo.List(ctx, models.AuditLogFilter{
		UserID: userID,
		Limit:  clampLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list user audit logs: %w: %w", models.ErrInfrastructure, err)
	}
	return entries, nil
}

// GetRecentFailedLogins returns failed login entries for email over the last hoursBack hours
func (s *AuditService) GetRecentFailedLogins(ctx context.Context, email string, hoursBack int) ([]*models.AuditLogEntry, error) {
	hoursBack = clampHours(hoursBack)

	entries, err := s.repo.List(ctx, models.AuditLogFilter{
		Email:      email,
		EventTypes: models.FailedLoginEventTypes,
		Since:      s.now().Add(-time.Duration(hoursBack) * time.Hour),
		Limit:      failedLoginsMaxRow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list failed logins: %w: %w", models.ErrInfrastructure, err)
	}
	return entries, nil
}

// GetAuditLogStats aggregates events over the last timeRangeHours hours
func (s *AuditService) GetAuditLogStats(ctx context.Context, timeRangeHours int) (*models.AuditLogStats, error) {
	timeRangeHours = clampHours(timeRangeHours)

	stats, err := s.repo.Stats(ctx, s.now().Add(-time.Duration(timeRangeHours)*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit logs: %w: %w", models.ErrInfrastructure, err)
	}
	stats.TimeRangeHours = timeRangeHours
	return stats, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultAuditLimit
	case limit > maxAuditLimit:
		return maxAuditLimit
	default:
		return limit
	}
}

func clampHours(hours int) int {
	switch {
	case hours <= 0:
		return defaultHoursBack
	case hours > maxHoursBack:
		return maxHoursBack
	default:
		return hours
	}
}

// newAuditEntry builds an entry from request details; empty strings become NULL
func newAuditEntry(eventType models.AuthEventType, userID, email string, rc models.RequestContext, success bool, metadata models.AuditMetadata) *models.AuditLogEntry {
	return &models.AuditLogEntry{
		UserID:            optional(userID),
		Email:             optional(email),
		EventType:         eventType,
		IPAddress:         optional(rc.IPAddress),
		UserAgent:         optional(rc.UserAgent),
		DeviceFingerprint: optional(rc.DeviceFingerprint),
		Location:          optional(rc.Location),
		Metadata:          metadata,
		Success:           success,
	}
}

// prepareEntry lower-cases the email, fills a missing metadata map and derives the device fingerprint
func prepareEntry(entry *models.AuditLogEntry) {
	if entry.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*entry.Email))
		entry.Email = optional(e)
	}
	if entry.Metadata == nil {
		entry.Metadata = models.AuditMetadata{}
	}
	if entry.DeviceFingerprint == nil && (entry.IPAddress != nil || entry.UserAgent != nil) {
		fp := generateDeviceFingerprint(deref(entry.IPAddress), deref(entry.UserAgent))
		entry.DeviceFingerprint = &fp
	}
}

// generateDeviceFingerprint creates a device fingerprint from IP and User-Agent
func generateDeviceFingerprint(ipAddress, userAgent string) string {
	hash := sha256.Sum256([]byte(ipAddress + ":" + userAgent))
	return hex.EncodeToString(hash[:])[:32]
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package services

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockSecurityProfileRepository is an in-memory profile store with the same
// statement-level semantics as the Postgres repository. Any Func field overrides
// the in-memory behaviour for that method.
type MockSecurityProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*models.SecurityProfile

	GetByIDFunc                 func(ctx context.Context, id string) (*models.SecurityProfile, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.SecurityProfile, error)
	ResetStaleCounterFunc       func(ctx context.Context, email string, now, resetCutoff time.Time) (bool, error)
	IncrementFailedAttemptsFunc func(ctx context.Context, email string, now, resetCutoff time.Time, maxAttempts int, lockUntil time.Time) (*models.SecurityProfile, error)
	ResetFailedAttemptsFunc     func(ctx context.Context, id string, now time.Time) error
	EnableTwoFactorFunc         func(ctx context.Context, id, secret string, hashes []string, verifiedAt time.Time) error
	ConsumeBackupCodeFunc       func(ctx context.Context, id, hash string, now time.Time) (int, bool, error)
}

func NewMockSecurityProfileRepository() *MockSecurityProfileRepository {
	return &MockSecurityProfileRepository{profiles: make(map[string]*models.SecurityProfile)}
}

func copyProfile(p *models.SecurityProfile) *models.SecurityProfile {
	c := *p
	c.BackupCodes = slices.Clone(p.BackupCodes)
	if c.BackupCodes == nil {
		c.BackupCodes = []string{}
	}
	return &c
}

// Seed stores a copy of p
func (m *MockSecurityProfileRepository) Seed(p *models.SecurityProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = copyProfile(p)
}

// Profile returns a copy of the stored profile, or nil
func (m *MockSecurityProfileRepository) Profile(id string) *models.SecurityProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[id]; ok {
		return copyProfile(p)
	}
	return nil
}

// Mutate applies fn to the stored profile
func (m *MockSecurityProfileRepository) Mutate(id string, fn func(p *models.SecurityProfile)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[id]; ok {
		fn(p)
	}
}

func (m *MockSecurityProfileRepository) byEmailLocked(email string) *models.SecurityProfile {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, p := range m.profiles {
		if p.Email == email {
			return p
		}
	}
	return nil
}

func isStale(p *models.SecurityProfile, now, resetCutoff time.Time) bool {
	if p.LockedUntil != nil {
		return !p.LockedUntil.After(now)
	}
	return p.LastFailedLoginAt != nil && p.LastFailedLoginAt.Before(resetCutoff)
}

func clearCounter(p *models.SecurityProfile) {
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	p.LastFailedLoginAt = nil
}

func (m *MockSecurityProfileRepository) Create(ctx context.Context, id, email string) (*models.SecurityProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := m.profiles[id]; ok || m.byEmailLocked(email) != nil {
		return nil, models.ErrConflict
	}
	p := &models.SecurityProfile{ID: id, Email: email, BackupCodes: []string{}}
	m.profiles[id] = p
	return copyProfile(p), nil
}

func (m *MockSecurityProfileRepository) GetByID(ctx context.Context, id string) (*models.SecurityProfile, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	if p := m.Profile(id); p != nil {
		return p, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockSecurityProfileRepository) GetByEmail(ctx context.Context, email string) (*models.SecurityProfile, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.byEmailLocked(email); p != nil {
		return copyProfile(p), nil
	}
	return nil, models.ErrNotFound
}

func (m *MockSecurityProfileRepository) ResetStaleCounter(ctx context.Context, email string, now, resetCutoff time.Time) (bool, error) {
	if m.ResetStaleCounterFunc != nil {
		return m.ResetStaleCounterFunc(ctx, email, now, resetCutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byEmailLocked(email)
	if p == nil || !isStale(p, now, resetCutoff) {
		return false, nil
	}
	clearCounter(p)
	return true, nil
}

func (m *MockSecurityProfileRepository) IncrementFailedAttempts(ctx context.Context, email string, now, resetCutoff time.Time, maxAttempts int, lockUntil time.Time) (*models.SecurityProfile, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, email, now, resetCutoff, maxAttempts, lockUntil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.byEmailLocked(email)
	if p == nil {
		return nil, models.ErrNotFound
	}

	if isStale(p, now, resetCutoff) {
		clearCounter(p)
	}
	p.FailedLoginAttempts++
	if p.FailedLoginAttempts >= maxAttempts {
		lu := lockUntil
		p.LockedUntil = &lu
	}
	ts := now
	p.LastFailedLoginAt = &ts
	return copyProfile(p), nil
}

func (m *MockSecurityProfileRepository) ResetFailedAttempts(ctx context.Context, id string, now time.Time) error {
	if m.ResetFailedAttemptsFunc != nil {
		return m.ResetFailedAttemptsFunc(ctx, id, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.ErrNotFound
	}
	clearCounter(p)
	return nil
}

func (m *MockSecurityProfileRepository) EnableTwoFactor(ctx context.Context, id, secret string, hashes []string, verifiedAt time.Time) error {
	if m.EnableTwoFactorFunc != nil {
		return m.EnableTwoFactorFunc(ctx, id, secret, hashes, verifiedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.ErrNotFound
	}
	if p.TwoFactorEnabled {
		return models.ErrConflict
	}
	s, v := secret, verifiedAt
	p.TwoFactorEnabled = true
	p.TwoFactorSecret = &s
	p.TwoFactorVerifiedAt = &v
	p.BackupCodes = slices.Clone(hashes)
	return nil
}

func (m *MockSecurityProfileRepository) DisableTwoFactor(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.ErrNotFound
	}
	if !p.TwoFactorEnabled {
		return models.ErrTwoFactorNotEnabled
	}
	p.TwoFactorEnabled = false
	p.TwoFactorSecret = nil
	p.TwoFactorVerifiedAt = nil
	p.BackupCodes = []string{}
	return nil
}

func (m *MockSecurityProfileRepository) ReplaceBackupCodes(ctx context.Context, id string, hashes []string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.ErrNotFound
	}
	if !p.TwoFactorEnabled {
		return models.ErrTwoFactorNotEnabled
	}
	p.BackupCodes = slices.Clone(hashes)
	return nil
}

func (m *MockSecurityProfileRepository) ConsumeBackupCode(ctx context.Context, id, hash string, now time.Time) (int, bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, id, hash, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok || !p.TwoFactorEnabled {
		return 0, false, nil
	}
	idx := slices.Index(p.BackupCodes, hash)
	if idx < 0 {
		return 0, false, nil
	}
	p.BackupCodes = slices.Delete(p.BackupCodes, idx, idx+1)
	return len(p.BackupCodes), true, nil
}

// MockAuditRecorder captures audit entries
type MockAuditRecorder struct {
	mu      sync.Mutex
	Entries []*models.AuditLogEntry
}

func (m *MockAuditRecorder) LogAuthEvent(ctx context.Context, entry *models.AuditLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

// ByType returns captured entries of eventType in order
func (m *MockAuditRecorder) ByType(eventType models.AuthEventType) []*models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditLogEntry, 0)
	for _, e := range m.Entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockAuditRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// MockAuditLogRepository keeps entries in memory and evaluates filters like the SQL repository
type MockAuditLogRepository struct {
	mu      sync.Mutex
	entries []*models.AuditLogEntry

	CreateFunc           func(ctx context.Context, entry *models.AuditLogEntry) error
	ListFunc             func(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLogEntry, error)
	CountFunc            func(ctx context.Context, filter models.AuditLogFilter) (int64, error)
	CountDistinctIPsFunc func(ctx context.Context, filter models.AuditLogFilter) (int64, error)
	StatsFunc            func(ctx context.Context, since time.Time) (*models.AuditLogStats, error)
	ListEmailsFunc       func(ctx context.Context, since time.Time, minEvents int) ([]string, error)
}

// Add inserts an entry as-is (CreatedAt must be set by the caller)
func (m *MockAuditLogRepository) Add(entry *models.AuditLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *MockAuditLogRepository) All() []*models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.Add(entry)
	return nil
}

func matches(e *models.AuditLogEntry, f models.AuditLogFilter) bool {
	if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
		return false
	}
	if f.Email != "" && (e.Email == nil || *e.Email != strings.ToLower(f.Email)) {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

func (m *MockAuditLogRepository) filter(f models.AuditLogFilter) []*models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditLogEntry, 0)
	for _, e := range m.entries {
		if matches(e, f) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b *models.AuditLogEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (m *MockAuditLogRepository) List(ctx context.Context, f models.AuditLogFilter) ([]*models.AuditLogEntry, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	out := m.filter(f)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MockAuditLogRepository) Count(ctx context.Context, f models.AuditLogFilter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, f)
	}
	return int64(len(m.filter(f))), nil
}

func (m *MockAuditLogRepository) CountDistinctIPs(ctx context.Context, f models.AuditLogFilter) (int64, error) {
	if m.CountDistinctIPsFunc != nil {
		return m.CountDistinctIPsFunc(ctx, f)
	}
	seen := map[string]struct{}{}
	for _, e := range m.filter(f) {
		if e.IPAddress != nil {
			seen[*e.IPAddress] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (m *MockAuditLogRepository) Stats(ctx context.Context, since time.Time) (*models.AuditLogStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, since)
	}
	s := &models.AuditLogStats{}
	users := map[string]struct{}{}
	for _, e := range m.filter(models.AuditLogFilter{Since: since}) {
		switch e.EventType {
		case models.EventLoginSuccess:
			s.TotalLogins++
			s.SuccessfulLogins++
		case models.EventLoginFailed:
			s.TotalLogins++
			s.FailedLogins++
		case models.EventAccountLocked:
			s.TotalLogins++
			s.FailedLogins++
			s.AccountLockouts++
		case models.EventPasswordResetRequested:
			s.PasswordResets++
		}
		if e.UserID != nil {
			users[*e.UserID] = struct{}{}
		} else if e.Email != nil {
			users[*e.Email] = struct{}{}
		}
	}
	s.UniqueUsers = int64(len(users))
	return s, nil
}

func (m *MockAuditLogRepository) ListEmailsWithFailures(ctx context.Context, since time.Time, minEvents int) ([]string, error) {
	if m.ListEmailsFunc != nil {
		return m.ListEmailsFunc(ctx, since, minEvents)
	}
	counts := map[string]int{}
	types := []models.AuthEventType{models.EventLoginFailed, models.EventAccountLocked, models.EventPasswordResetRequested}
	for _, e := range m.filter(models.AuditLogFilter{Since: since, EventTypes: types}) {
		if e.Email != nil {
			counts[*e.Email]++
		}
	}
	out := make([]string, 0)
	for email, n := range counts {
		if n >= minEvents {
			out = append(out, email)
		}
	}
	slices.Sort(out)
	return out, nil
}

// MockPasswordVerifier implements PasswordVerifier for testing
type MockPasswordVerifier struct {
	VerifyPasswordFunc func(ctx context.Context, userID, password string) error
}

func (m *MockPasswordVerifier) VerifyPassword(ctx context.Context, userID, password string) error {
	if m.VerifyPasswordFunc != nil {
		return m.VerifyPasswordFunc(ctx, userID, password)
	}
	if password == "correct-password" {
		return nil
	}
	return models.ErrInvalidCredential
}

// MockSecurityNotifier records lockout notifications on a channel
type MockSecurityNotifier struct {
	Calls chan string
	Err   error
}

func NewMockSecurityNotifier() *MockSecurityNotifier {
	return &MockSecurityNotifier{Calls: make(chan string, 16)}
}

func (m *MockSecurityNotifier) NotifyAccountLocked(ctx context.Context, email string, lockedUntil time.Time, rc models.RequestContext) error {
	m.Calls <- email
	return m.Err
}

// NewTestProfile builds a zeroed profile
func NewTestProfile(id, email string) *models.SecurityProfile {
	now := time.Now()
	return &models.SecurityProfile{
		ID:          id,
		Email:       email,
		BackupCodes: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestProfileWith2FA builds a profile with 2FA enabled for secret and the given backup code hashes
func NewTestProfileWith2FA(id, email, secret string, backupCodeHashes []string) *models.SecurityProfile {
	p := NewTestProfile(id, email)
	verified := time.Now().Add(-24 * time.Hour)
	p.TwoFactorEnabled = true
	p.TwoFactorSecret = &secret
	p.TwoFactorVerifiedAt = &verified
	p.BackupCodes = slices.Clone(backupCodeHashes)
	return p
}

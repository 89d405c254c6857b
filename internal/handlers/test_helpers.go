package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithClaims adds token claims to request context for testing authenticated endpoints
func WithClaims(req *http.Request, userID, email, role string) *http.Request {
	claims := &auth.Claims{
		Email:            email,
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParam sets a chi route parameter on req
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockBruteForceGuard implements BruteForceGuard for testing
type MockBruteForceGuard struct {
	CheckFunc                    func(ctx context.Context, email string) (*models.BruteForceStatus, error)
	RecordFailedLoginAttemptFunc func(ctx context.Context, email string, rc models.RequestContext) (*models.FailedAttemptResult, error)
	RecordSuccessfulLoginFunc    func(ctx context.Context, userID, email string, rc models.RequestContext) error
	UnlockUserAccountFunc        func(ctx context.Context, userID, adminID string) error
	GetProfileStatusFunc         func(ctx context.Context, userID string) (*models.ProfileStatus, error)
}

func (m *MockBruteForceGuard) Check(ctx context.Context, email string) (*models.BruteForceStatus, error) {
	if m.CheckFunc == nil {
		return &models.BruteForceStatus{Allowed: true, AttemptsRemaining: 5}, nil
	}
	return m.CheckFunc(ctx, email)
}

func (m *MockBruteForceGuard) RecordFailedLoginAttempt(ctx context.Context, email string, rc models.RequestContext) (*models.FailedAttemptResult, error) {
	if m.RecordFailedLoginAttemptFunc == nil {
		return &models.FailedAttemptResult{ProfileFound: true, Attempts: 1}, nil
	}
	return m.RecordFailedLoginAttemptFunc(ctx, email, rc)
}

func (m *MockBruteForceGuard) RecordSuccessfulLogin(ctx context.Context, userID, email string, rc models.RequestContext) error {
	if m.RecordSuccessfulLoginFunc == nil {
		return nil
	}
	return m.RecordSuccessfulLoginFunc(ctx, userID, email, rc)
}

func (m *MockBruteForceGuard) UnlockUserAccount(ctx context.Context, userID, adminID string) error {
	if m.UnlockUserAccountFunc == nil {
		return nil
	}
	return m.UnlockUserAccountFunc(ctx, userID, adminID)
}

func (m *MockBruteForceGuard) GetProfileStatus(ctx context.Context, userID string) (*models.ProfileStatus, error) {
	if m.GetProfileStatusFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileStatusFunc(ctx, userID)
}

// MockTwoFactorManager implements TwoFactorManager for testing
type MockTwoFactorManager struct {
	GenerateSecretFunc        func(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	EnableFunc                func(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error)
	DisableFunc               func(ctx context.Context, userID, email, password string, rc models.RequestContext) error
	VerifyForLoginFunc        func(ctx context.Context, userID, email, token string, rc models.RequestContext) (*models.TwoFactorVerification, error)
	RegenerateBackupCodesFunc func(ctx context.Context, userID, email, password string, rc models.RequestContext) (*models.BackupCodeSet, error)
	GetStatusFunc             func(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

func (m *MockTwoFactorManager) GenerateSecret(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	if m.GenerateSecretFunc == nil {
		return &models.TwoFactorSetup{}, nil
	}
	return m.GenerateSecretFunc(ctx, userID, email)
}

func (m *MockTwoFactorManager) Enable(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error) {
	if m.EnableFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.EnableFunc(ctx, userID, email, secret, token, rc)
}

func (m *MockTwoFactorManager) Disable(ctx context.Context, userID, email, password string, rc models.RequestContext) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, userID, email, password, rc)
}

func (m *MockTwoFactorManager) VerifyForLogin(ctx context.Context, userID, email, token string, rc models.RequestContext) (*models.TwoFactorVerification, error) {
	if m.VerifyForLoginFunc == nil {
		return &models.TwoFactorVerification{Success: false}, nil
	}
	return m.VerifyForLoginFunc(ctx, userID, email, token, rc)
}

func (m *MockTwoFactorManager) RegenerateBackupCodes(ctx context.Context, userID, email, password string, rc models.RequestContext) (*models.BackupCodeSet, error) {
	if m.RegenerateBackupCodesFunc == nil {
		return nil, models.ErrInvalidCredential
	}
	return m.RegenerateBackupCodesFunc(ctx, userID, email, password, rc)
}

func (m *MockTwoFactorManager) GetStatus(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	if m.GetStatusFunc == nil {
		return &models.TwoFactorStatus{}, nil
	}
	return m.GetStatusFunc(ctx, userID)
}

// MockProfileProvisioner implements ProfileProvisioner for testing
type MockProfileProvisioner struct {
	ProvisionFunc func(ctx context.Context, userID, email string, rc models.RequestContext) (*models.SecurityProfile, error)
}

func (m *MockProfileProvisioner) Provision(ctx context.Context, userID, email string, rc models.RequestContext) (*models.SecurityProfile, error) {
	if m.ProvisionFunc == nil {
		return &models.SecurityProfile{ID: userID, Email: email}, nil
	}
	return m.ProvisionFunc(ctx, userID, email, rc)
}

// MockAuditQueries implements AuditQueries for testing
type MockAuditQueries struct {
	RecordExternalEventFunc   func(ctx context.Context, entry *models.AuditLogEntry) error
	GetUserAuditLogsFunc      func(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error)
	GetRecentFailedLoginsFunc func(ctx context.Context, email string, hoursBack int) ([]*models.AuditLogEntry, error)
	GetAuditLogStatsFunc      func(ctx context.Context, timeRangeHours int) (*models.AuditLogStats, error)
}

func (m *MockAuditQueries) RecordExternalEvent(ctx context.Context, entry *models.AuditLogEntry) error {
	if m.RecordExternalEventFunc == nil {
		return nil
	}
	return m.RecordExternalEventFunc(ctx, entry)
}

func (m *MockAuditQueries) GetUserAuditLogs(ctx context.Context, userID string, limit int) ([]*models.AuditLogEntry, error) {
	if m.GetUserAuditLogsFunc == nil {
		return []*models.AuditLogEntry{}, nil
	}
	return m.GetUserAuditLogsFunc(ctx, userID, limit)
}

func (m *MockAuditQueries) GetRecentFailedLogins(ctx context.Context, email string, hoursBack int) ([]*models.AuditLogEntry, error) {
	if m.GetRecentFailedLoginsFunc == nil {
		return []*models.AuditLogEntry{}, nil
	}
	return m.GetRecentFailedLoginsFunc(ctx, email, hoursBack)
}

func (m *MockAuditQueries) GetAuditLogStats(ctx context.Context, timeRangeHours int) (*models.AuditLogStats, error) {
	if m.GetAuditLogStatsFunc == nil {
		return &models.AuditLogStats{TimeRangeHours: timeRangeHours}, nil
	}
	return m.GetAuditLogStatsFunc(ctx, timeRangeHours)
}

// MockActivityDetector implements ActivityDetector for testing
type MockActivityDetector struct {
	DetectFunc func(ctx context.Context, email string) (*models.SuspiciousActivityReport, error)
}

func (m *MockActivityDetector) Detect(ctx context.Context, email string) (*models.SuspiciousActivityReport, error) {
	if m.DetectFunc == nil {
		return &models.SuspiciousActivityReport{Email: email, Reasons: []string{}}, nil
	}
	return m.DetectFunc(ctx, email)
}

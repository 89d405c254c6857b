package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bobID    = "0b4e7c7a-55a2-4d3e-8f61-2a9c1e7d4b10"
	bobEmail = "bob@example.com"
)

var testCodes = []string{"A1B2-C3D4", "E5F6-0718", "293A-4B5C", "6D7E-8F90", "1122-3344", "5566-7788", "99AA-BBCC", "DDEE-FF00"}

func userRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	return handlers.WithClaims(handlers.NewTestRequest(t, method, url, body), bobID, bobEmail, auth.RoleUser)
}

// ── Setup ─────────────────────────────────────────────────────────────────────

func TestTwoFactorHandler_Setup(t *testing.T) {
	svc := &handlers.MockTwoFactorManager{
		GenerateSecretFunc: func(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
			assert.Equal(t, bobID, userID)
			assert.Equal(t, bobEmail, email)
			return &models.TwoFactorSetup{
				Secret:         "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
				ManualEntryKey: "JBSW Y3DP EHPK 3PXP JBSW Y3DP EHPK 3PXP",
				OTPAuthURL:     "otpauth://totp/Bastion:bob@example.com?secret=JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
				QRCode:         "data:image/png;base64,AAAA",
			}, nil
		},
	}
	h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

	w := httptest.NewRecorder()
	h.Setup(w, userRequest(t, http.MethodPost, "/v1/2fa/setup", nil))

	var resp models.TwoFactorSetup
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP", resp.Secret)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestTwoFactorHandler_RequiresAuthentication(t *testing.T) {
	h := handlers.NewTwoFactorHandler(&handlers.MockTwoFactorManager{}, nil, nil, testLogger())

	for name, fn := range map[string]http.HandlerFunc{
		"setup":   h.Setup,
		"enable":  h.Enable,
		"disable": h.Disable,
		"codes":   h.RegenerateBackupCodes,
		"status":  h.Status,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			fn(w, handlers.NewTestRequest(t, http.MethodPost, "/v1/2fa/"+name, nil))
			handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

// ── Enable ────────────────────────────────────────────────────────────────────

func TestTwoFactorHandler_Enable_ReturnsCodesOnce(t *testing.T) {
	svc := &handlers.MockTwoFactorManager{
		EnableFunc: func(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error) {
			assert.Equal(t, "123456", token)
			return models.NewBackupCodeSet(testCodes), nil
		},
	}
	h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

	w := httptest.NewRecorder()
	h.Enable(w, userRequest(t, http.MethodPost, "/v1/2fa/enable", map[string]string{
		"secret": "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
		"code":   "123456",
	}))

	var resp handlers.BackupCodesResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, testCodes, resp.BackupCodes)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestTwoFactorHandler_Enable_InvalidCodeIsPadded(t *testing.T) {
	svc := &handlers.MockTwoFactorManager{
		EnableFunc: func(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error) {
			return nil, models.ErrInvalidCode
		},
	}
	timing := auth.NewTimingDelay(auth.TimingConfig{MinDuration: 50 * time.Millisecond})
	h := handlers.NewTwoFactorHandler(svc, timing, nil, testLogger())

	start := time.Now()
	w := httptest.NewRecorder()
	h.Enable(w, userRequest(t, http.MethodPost, "/v1/2fa/enable", map[string]string{
		"secret": "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
		"code":   "000000",
	}))

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "invalid_code")
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTwoFactorHandler_Enable_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"short code", map[string]string{"secret": "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP", "code": "12345"}},
		{"letters in code", map[string]string{"secret": "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP", "code": "12345a"}},
		{"missing secret", map[string]string{"code": "123456"}},
		{"secret with symbols", map[string]string{"secret": "JBSWY3DP-EHPK3PXP!", "code": "123456"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &handlers.MockTwoFactorManager{
				EnableFunc: func(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error) {
					called = true
					return nil, nil
				},
			}
			h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

			w := httptest.NewRecorder()
			h.Enable(w, userRequest(t, http.MethodPost, "/v1/2fa/enable", tt.body))

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
			assert.False(t, called)
		})
	}
}

func TestTwoFactorHandler_Enable_AlreadyEnabled(t *testing.T) {
	svc := &handlers.MockTwoFactorManager{
		EnableFunc: func(ctx context.Context, userID, email, secret, token string, rc models.RequestContext) (*models.BackupCodeSet, error) {
			return nil, models.ErrConflict
		},
	}
	h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

	w := httptest.NewRecorder()
	h.Enable(w, userRequest(t, http.MethodPost, "/v1/2fa/enable", map[string]string{
		"secret": "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
		"code":   "123456",
	}))

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

// ── Disable and regenerate ────────────────────────────────────────────────────

func TestTwoFactorHandler_Disable(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"success", nil, http.StatusNoContent, ""},
		{"wrong password", models.ErrInvalidCredential, http.StatusUnauthorized, "invalid_credentials"},
		{"not enabled", models.ErrTwoFactorNotEnabled, http.StatusConflict, "two_factor_not_enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockTwoFactorManager{
				DisableFunc: func(ctx context.Context, userID, email, password string, rc models.RequestContext) error {
					return tt.err
				},
			}
			h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

			w := httptest.NewRecorder()
			h.Disable(w, userRequest(t, http.MethodPost, "/v1/2fa/disable", map[string]string{"password": "hunter2"}))

			if tt.err == nil {
				assert.Equal(t, tt.wantStatus, w.Code)
				return
			}
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantError)
		})
	}
}

func TestTwoFactorHandler_RegenerateBackupCodes(t *testing.T) {
	svc := &handlers.MockTwoFactorManager{
		RegenerateBackupCodesFunc: func(ctx context.Context, userID, email, password string, rc models.RequestContext) (*models.BackupCodeSet, error) {
			if password != "correct-password" {
				return nil, models.ErrInvalidCredential
			}
			return models.NewBackupCodeSet(testCodes), nil
		},
	}
	h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

	w := httptest.NewRecorder()
	h.RegenerateBackupCodes(w, userRequest(t, http.MethodPost, "/v1/2fa/backup-codes", map[string]string{"password": "nope"}))
	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "invalid_credentials")

	w = httptest.NewRecorder()
	h.RegenerateBackupCodes(w, userRequest(t, http.MethodPost, "/v1/2fa/backup-codes", map[string]string{"password": "correct-password"}))
	var resp handlers.BackupCodesResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Len(t, resp.BackupCodes, 8)
}

// ── Status and Verify ─────────────────────────────────────────────────────────

func TestTwoFactorHandler_Status(t *testing.T) {
	verified := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	svc := &handlers.MockTwoFactorManager{
		GetStatusFunc: func(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
			return &models.TwoFactorStatus{Enabled: true, VerifiedAt: &verified, BackupCodesRemaining: 6}, nil
		},
	}
	h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

	w := httptest.NewRecorder()
	h.Status(w, userRequest(t, http.MethodGet, "/v1/2fa/status", nil))

	var resp map[string]interface{}
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, true, resp["enabled"])
	assert.Equal(t, float64(6), resp["backup_codes_remaining"])
	assert.NotContains(t, resp, "secret")
}

func TestTwoFactorHandler_Verify(t *testing.T) {
	svc := &handlers.MockTwoFactorManager{
		VerifyForLoginFunc: func(ctx context.Context, userID, email, token string, rc models.RequestContext) (*models.TwoFactorVerification, error) {
			switch token {
			case "654321":
				return &models.TwoFactorVerification{Success: true, RemainingBackupCodes: 8}, nil
			case "A1B2-C3D4":
				return &models.TwoFactorVerification{Success: true, UsedBackupCode: true, RemainingBackupCodes: 7}, nil
			default:
				return &models.TwoFactorVerification{Success: false}, nil
			}
		},
	}
	h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

	verify := func(code string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.Verify(w, handlers.NewTestRequest(t, http.MethodPost, "/v1/2fa/verify", map[string]string{
			"user_id": bobID,
			"email":   bobEmail,
			"code":    code,
		}))
		return w
	}

	var resp models.TwoFactorVerification
	handlers.AssertJSONResponse(t, verify("654321"), http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.False(t, resp.UsedBackupCode)

	handlers.AssertJSONResponse(t, verify("A1B2-C3D4"), http.StatusOK, &resp)
	assert.True(t, resp.UsedBackupCode)
	assert.Equal(t, 7, resp.RemainingBackupCodes)

	handlers.AssertErrorResponse(t, verify("111111"), http.StatusUnauthorized, "invalid_code")
}

func TestTwoFactorHandler_Verify_NotEnabled(t *testing.T) {
	svc := &handlers.MockTwoFactorManager{
		VerifyForLoginFunc: func(ctx context.Context, userID, email, token string, rc models.RequestContext) (*models.TwoFactorVerification, error) {
			return nil, models.ErrTwoFactorNotEnabled
		},
	}
	h := handlers.NewTwoFactorHandler(svc, nil, nil, testLogger())

	w := httptest.NewRecorder()
	h.Verify(w, handlers.NewTestRequest(t, http.MethodPost, "/v1/2fa/verify", map[string]string{
		"user_id": bobID,
		"code":    "123456",
	}))

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "two_factor_not_enabled")
	require.NotContains(t, w.Body.String(), "secret")
}

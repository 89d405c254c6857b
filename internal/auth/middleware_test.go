package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func claimsEcho(got **Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager(testSecret)
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims(RoleService))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer invalid", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Claims
			handler := AuthMiddleware(tm)(claimsEcho(&got))

			req := httptest.NewRequest(http.MethodPost, "/v1/guard/check", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusOK && (got == nil || got.Role != RoleService) {
				t.Errorf("claims not injected into context: %+v", got)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager(testSecret)

	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin allowed", RoleAdmin, http.StatusOK},
		{"user allowed", RoleUser, http.StatusOK},
		{"service denied", RoleService, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Claims
			handler := AuthMiddleware(tm)(RequireRole(RoleUser, RoleAdmin)(claimsEcho(&got)))

			req := httptest.NewRequest(http.MethodGet, "/v1/2fa/status", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, validClaims(tt.role)))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRequireRole_WithoutClaims(t *testing.T) {
	var got *Claims
	handler := RequireRole(RoleAdmin)(claimsEcho(&got))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/audit/stats", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func validClaims(role string) *Claims {
	return &Claims{
		Email: "bob@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "3f1c7a52-9a2b-4c1e-8f7d-2b6a1e0c9d44",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidateToken_Valid(t *testing.T) {
	tm := NewTokenManager(testSecret)

	claims, err := tm.ValidateToken(signToken(t, jwt.SigningMethodHS256, testSecret, validClaims(RoleUser)))
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.UserID() != "3f1c7a52-9a2b-4c1e-8f7d-2b6a1e0c9d44" {
		t.Errorf("unexpected subject %q", claims.UserID())
	}
	if claims.Role != RoleUser || claims.Email != "bob@example.com" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	tm := NewTokenManager(testSecret)

	expired := validClaims(RoleService)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims(RoleService)
	noExpiry.ExpiresAt = nil

	noSubject := validClaims(RoleService)
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, "another-secret-another-secret-123", validClaims(RoleUser))},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, testSecret, validClaims(RoleUser))},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, expired)},
		{"missing expiry", signToken(t, jwt.SigningMethodHS256, testSecret, noExpiry)},
		{"missing subject", signToken(t, jwt.SigningMethodHS256, testSecret, noSubject)},
		{"unknown role", signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("superuser"))},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tm.ValidateToken(tt.token); err == nil {
				t.Error("expected token to be rejected")
			}
		})
	}
}

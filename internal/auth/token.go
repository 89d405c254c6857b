package auth

import (
	"fmt"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the role claim
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

// Claims is the bearer token payload. Tokens are minted by the identity
// service; this service only validates them.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenManager validates HS256 bearer tokens
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid token: missing subject")
	}

	switch claims.Role {
	case RoleUser, RoleAdmin, RoleService:
	default:
		return nil, fmt.Errorf("invalid token: unknown role %q", claims.Role)
	}

	return claims, nil
}

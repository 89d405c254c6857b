package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/auth"
)

// CredentialStore reads password hashes owned by the identity service
type CredentialStore interface {
	GetPasswordHash(ctx context.Context, userID string) (string, error)
}

// BcryptPasswordVerifier checks a password against the stored bcrypt hash
type BcryptPasswordVerifier struct {
	repo CredentialStore
}

func NewBcryptPasswordVerifier(repo CredentialStore) *BcryptPasswordVerifier {
	return &BcryptPasswordVerifier{repo: repo}
}

// VerifyPassword returns models.ErrInvalidCredential for a wrong password or unknown user.
// Both cases cost one bcrypt comparison.
func (v *BcryptPasswordVerifier) VerifyPassword(ctx context.Context, userID, password string) error {
	hash, err := v.repo.GetPasswordHash(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			_ = auth.CompareDummy(password)
			return models.ErrInvalidCredential
		}
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if err := auth.ComparePassword(hash, password); err != nil {
		if errors.Is(err, auth.ErrMismatchedPassword) {
			return models.ErrInvalidCredential
		}
		return err
	}
	return nil
}

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is used only for hashes minted by this module (fixtures and the
// dummy hash). Stored credentials keep whatever cost they were created with.
const BcryptCost = 12

var ErrMismatchedPassword = errors.New("password does not match")

// dummyHash is compared against when no credential exists so the miss costs
// the same bcrypt work as a real comparison
var dummyHash = mustHash("bastion-dummy-password")

func mustHash(password string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("failed to build dummy hash: %v", err))
	}
	return h
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword returns nil on a match and ErrMismatchedPassword otherwise
func ComparePassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedPassword
	}
	return fmt.Errorf("failed to compare password: %w", err)
}

// CompareDummy burns one bcrypt comparison and always fails
func CompareDummy(password string) error {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return ErrMismatchedPassword
}

package auth

import (
	"errors"
	"testing"
)

func TestHashAndComparePassword(t *testing.T) {
	password := "correct horse battery staple"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if hash == password {
		t.Error("HashPassword() returned the plaintext")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword() with correct password error = %v", err)
	}

	err = ComparePassword(hash, "wrong password")
	if !errors.Is(err, ErrMismatchedPassword) {
		t.Errorf("ComparePassword() with wrong password error = %v, want ErrMismatchedPassword", err)
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("HashPassword(\"\") error = nil, want error")
	}
}

func TestComparePassword_MalformedHash(t *testing.T) {
	err := ComparePassword("not-a-bcrypt-hash", "anything")
	if err == nil {
		t.Fatal("ComparePassword() with malformed hash error = nil")
	}
	if errors.Is(err, ErrMismatchedPassword) {
		t.Error("malformed hash should not be reported as a mismatch")
	}
}

func TestCompareDummy_AlwaysFails(t *testing.T) {
	if err := CompareDummy("bastion-dummy-password"); !errors.Is(err, ErrMismatchedPassword) {
		t.Errorf("CompareDummy() error = %v, want ErrMismatchedPassword", err)
	}
}

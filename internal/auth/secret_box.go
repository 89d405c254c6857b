package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a stored TOTP secret as AES-256-GCM ciphertext
const sealedPrefix = "v1:"

// ErrSecretKeyLength is returned for an encryption key that is not 32 bytes
var ErrSecretKeyLength = errors.New("encryption key must be 32 bytes for AES-256")

// SecretBox encrypts TOTP secrets at rest with AES-256-GCM
type SecretBox struct {
	gcm cipher.AEAD
}

// NewSecretBox creates a SecretBox from a 32-byte key
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != 32 {
		return nil, ErrSecretKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretBox{gcm: gcm}, nil
}

// Seal encrypts a base32 secret under a fresh random nonce.
// Output: "v1:" + base64(nonce || ciphertext)
func (b *SecretBox) Seal(secret string) (string, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := b.gcm.Seal(nonce, nonce, []byte(secret), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the prefix were stored
// before encryption was configured and are returned unchanged.
func (b *SecretBox) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}

	nonceSize := b.gcm.NonceSize()
	if len(raw) < nonceSize+b.gcm.Overhead() {
		return "", errors.New("sealed secret too short")
	}

	plaintext, err := b.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}

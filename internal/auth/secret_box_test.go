package auth

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

func newTestSecretBox(t *testing.T, fill byte) *SecretBox {
	t.Helper()
	box, err := NewSecretBox(bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	return box
}

func TestNewSecretBox_KeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33} {
		_, err := NewSecretBox(make([]byte, n))
		assert.ErrorIs(t, err, ErrSecretKeyLength, "key length %d", n)
	}
}

func TestSecretBox_SealOpen(t *testing.T) {
	box := newTestSecretBox(t, 0x42)

	sealed, err := box.Seal(plainSecret)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, plainSecret)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plainSecret, opened)
}

func TestSecretBox_FreshNoncePerSeal(t *testing.T) {
	box := newTestSecretBox(t, 0x42)

	a, err := box.Seal(plainSecret)
	require.NoError(t, err)
	b, err := box.Seal(plainSecret)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestSecretBox_OpenRejectsTampering(t *testing.T) {
	box := newTestSecretBox(t, 0x42)
	sealed, err := box.Seal(plainSecret)
	require.NoError(t, err)

	// flip one ciphertext character
	raw := []byte(sealed)
	i := len(sealedPrefix) + 30
	if raw[i] == 'A' {
		raw[i] = 'B'
	} else {
		raw[i] = 'A'
	}

	_, err = box.Open(string(raw))
	assert.Error(t, err)

	_, err = newTestSecretBox(t, 0x43).Open(sealed)
	assert.Error(t, err, "wrong key")

	_, err = box.Open(sealedPrefix + "!!!")
	assert.Error(t, err, "bad base64")

	_, err = box.Open(sealedPrefix + "AAAA")
	assert.Error(t, err, "too short")
}

func TestSecretBox_OpenUnsealedPassesThrough(t *testing.T) {
	box := newTestSecretBox(t, 0x42)

	opened, err := box.Open(plainSecret)
	require.NoError(t, err)
	assert.Equal(t, plainSecret, opened)
}

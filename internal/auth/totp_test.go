package auth

import (
	"encoding/base32"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mid-step reference time so ±n steps never straddle a boundary
var totpRefTime = time.Unix(1_700_000_010+15, 0).UTC()

func newTestTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	tm, err := NewTOTPManager("Bastion", "SHA1")
	require.NoError(t, err)
	return tm
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// ============================================================================
// Constructor Tests (3 tests)
// ============================================================================

func TestTOTPManager_NewTOTPManager_Valid(t *testing.T) {
	for _, alg := range []string{"", "SHA1", "sha256", "SHA512"} {
		tm, err := NewTOTPManager("Bastion", alg)
		assert.NoError(t, err, alg)
		assert.NotNil(t, tm)
	}
}

func TestTOTPManager_NewTOTPManager_UnsupportedAlgorithm(t *testing.T) {
	tm, err := NewTOTPManager("Bastion", "MD5")
	assert.Error(t, err)
	assert.Nil(t, tm)
}

func TestTOTPManager_NewTOTPManager_MissingIssuer(t *testing.T) {
	tm, err := NewTOTPManager("", "SHA1")
	assert.Error(t, err)
	assert.Nil(t, tm)
}

// ============================================================================
// Setup Generation Tests (4 tests)
// ============================================================================

func TestTOTPManager_GenerateSetup_SecretIs160Bits(t *testing.T) {
	tm := newTestTOTPManager(t)

	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(setup.Secret)
	require.NoError(t, err)
	assert.Len(t, raw, 20)
}

func TestTOTPManager_GenerateSetup_OTPAuthURL(t *testing.T) {
	tm := newTestTOTPManager(t)

	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	u, err := url.Parse(setup.OTPAuthURL)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Equal(t, "/Bastion:alice@x.com", u.Path)

	q := u.Query()
	assert.Equal(t, setup.Secret, q.Get("secret"))
	assert.Equal(t, "Bastion", q.Get("issuer"))
	assert.Equal(t, "SHA1", q.Get("algorithm"))
	assert.Equal(t, "6", q.Get("digits"))
	assert.Equal(t, "30", q.Get("period"))
}

func TestTOTPManager_GenerateSetup_QRCodeFormat(t *testing.T) {
	tm := newTestTOTPManager(t)

	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	assert.Greater(t, len(setup.QRCode), len("data:image/png;base64,"))
}

func TestTOTPManager_GenerateSetup_ManualEntryKeyMatchesSecret(t *testing.T) {
	tm := newTestTOTPManager(t)

	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, setup.Secret, strings.ReplaceAll(setup.ManualEntryKey, " ", ""))

	other, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, setup.Secret, other.Secret)
}

// ============================================================================
// Validation Tests (6 tests)
// ============================================================================

func TestTOTPManager_ValidateAt_CurrentStep(t *testing.T) {
	tm := newTestTOTPManager(t)
	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	assert.True(t, tm.ValidateAt(codeAt(t, setup.Secret, totpRefTime), setup.Secret, totpRefTime))
}

func TestTOTPManager_ValidateAt_PlusOneTimeStep(t *testing.T) {
	tm := newTestTOTPManager(t)
	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	code := codeAt(t, setup.Secret, totpRefTime.Add(30*time.Second))
	assert.True(t, tm.ValidateAt(code, setup.Secret, totpRefTime))
}

func TestTOTPManager_ValidateAt_MinusOneTimeStep(t *testing.T) {
	tm := newTestTOTPManager(t)
	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	code := codeAt(t, setup.Secret, totpRefTime.Add(-30*time.Second))
	assert.True(t, tm.ValidateAt(code, setup.Secret, totpRefTime))
}

func TestTOTPManager_ValidateAt_TwoStepsAwayRejected(t *testing.T) {
	tm := newTestTOTPManager(t)
	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	window := map[string]bool{}
	for _, off := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		window[codeAt(t, setup.Secret, totpRefTime.Add(off))] = true
	}

	for _, off := range []time.Duration{-60 * time.Second, 60 * time.Second} {
		code := codeAt(t, setup.Secret, totpRefTime.Add(off))
		if window[code] {
			// 1-in-a-million collision with an in-window code
			continue
		}
		assert.False(t, tm.ValidateAt(code, setup.Secret, totpRefTime), "offset %v", off)
	}
}

func TestTOTPManager_ValidateAt_MalformedInput(t *testing.T) {
	tm := newTestTOTPManager(t)
	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	assert.False(t, tm.ValidateAt("", setup.Secret, totpRefTime))
	assert.False(t, tm.ValidateAt("12345", setup.Secret, totpRefTime))
	assert.False(t, tm.ValidateAt("abcdef", setup.Secret, totpRefTime))
	assert.False(t, tm.ValidateAt("123456", "", totpRefTime))
}

func TestTOTPManager_Validate_UsesClock(t *testing.T) {
	tm := newTestTOTPManager(t)
	tm.now = func() time.Time { return totpRefTime }
	setup, err := tm.GenerateSetup("alice@x.com")
	require.NoError(t, err)

	assert.True(t, tm.Validate(codeAt(t, setup.Secret, totpRefTime), setup.Secret))
}

// ============================================================================
// Backup Code Tests (4 tests)
// ============================================================================

func TestTOTPManager_GenerateBackupCodes_Format(t *testing.T) {
	tm := newTestTOTPManager(t)

	codes, err := tm.GenerateBackupCodes(8)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	pattern := regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)
	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, pattern, c)
		seen[c] = true
	}
	assert.Len(t, seen, 8)
}

func TestHashBackupCode_CaseAndSeparatorInsensitive(t *testing.T) {
	want := HashBackupCode("AB12-CD34")

	assert.Equal(t, want, HashBackupCode("ab12cd34"))
	assert.Equal(t, want, HashBackupCode(" ab12 - cd34 "))
	assert.NotEqual(t, want, HashBackupCode("AB12-CD35"))
	assert.Len(t, want, 64)
}

func TestHashBackupCodes_RoundTrip(t *testing.T) {
	tm := newTestTOTPManager(t)

	codes, err := tm.GenerateBackupCodes(8)
	require.NoError(t, err)

	hashes := HashBackupCodes(codes)
	for i, c := range codes {
		assert.Equal(t, hashes[i], HashBackupCode(c))
		assert.Contains(t, hashes, HashBackupCode(strings.ToLower(c)))
	}
}

func TestNormalizeBackupCode(t *testing.T) {
	assert.Equal(t, "AB12CD34", NormalizeBackupCode("ab12-cd34"))
	assert.Equal(t, "", NormalizeBackupCode("--  --"))
	assert.Equal(t, "AB", NormalizeBackupCode("aéb"))
}

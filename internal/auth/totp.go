package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20 // 160 bits
	qrCodeSize     = 200
)

// TOTPManager handles TOTP secret generation, validation and backup codes
type TOTPManager struct {
	issuer    string
	algorithm otp.Algorithm
	now       func() time.Time
}

// NewTOTPManager creates a TOTP manager for the given issuer.
// algorithm is one of SHA1, SHA256 or SHA512.
func NewTOTPManager(issuer, algorithm string) (*TOTPManager, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	alg, err := parseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	return &TOTPManager{
		issuer:    issuer,
		algorithm: alg,
		now:       time.Now,
	}, nil
}

func parseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("unsupported TOTP algorithm %q", name)
	}
}

// GenerateSetup creates a fresh secret and the enrollment material for it.
// Nothing is persisted.
func (tm *TOTPManager) GenerateSetup(email string) (*models.TwoFactorSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: email,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   tm.algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	// Generate QR code from the provisioning URL
	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &models.TwoFactorSetup{
		Secret:         key.Secret(),
		ManualEntryKey: formatManualEntryKey(key.Secret()),
		OTPAuthURL:     key.URL(),
		QRCode:         "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
	}, nil
}

// formatManualEntryKey groups the base32 secret in blocks of four for typing
func formatManualEntryKey(secret string) string {
	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Validate checks a 6-digit code against the secret at the current time step.
// Codes from one step either side are accepted for clock drift.
func (tm *TOTPManager) Validate(code, secret string) bool {
	return tm.ValidateAt(code, secret, tm.now())
}

// ValidateAt is Validate evaluated at t
func (tm *TOTPManager) ValidateAt(code, secret string, t time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: tm.algorithm,
	})
	if err != nil {
		return false
	}
	return valid
}

// GenerateBackupCodes generates count random recovery codes formatted XXXX-XXXX (uppercase hex)
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	buf := make([]byte, 4)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate random bytes: %w", err)
		}
		raw := strings.ToUpper(hex.EncodeToString(buf))
		codes[i] = raw[:4] + "-" + raw[4:]
	}
	return codes, nil
}

// NormalizeBackupCode strips separators and upper-cases a user-supplied code
func NormalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// HashBackupCode returns the SHA-256 hex digest of the normalized code
func HashBackupCode(code string) string {
	hash := sha256.Sum256([]byte(NormalizeBackupCode(code)))
	return hex.EncodeToString(hash[:])
}

// HashBackupCodes hashes every code in order
func HashBackupCodes(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = HashBackupCode(c)
	}
	return hashes
}

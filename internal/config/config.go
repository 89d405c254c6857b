package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Auth       AuthConfig
	BruteForce BruteForceConfig
	TwoFactor  TwoFactorConfig
	Audit      AuditConfig
	Notifier   NotifierConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	StatementTimeout  time.Duration // server-side limit per statement; zero leaves the server default
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	RateLimit      int // requests per minute per end user on guard and 2FA routes
	CallerLimit    int // requests per minute per calling service token
}

type AuthConfig struct {
	JWTSecret string
}

// BruteForceConfig controls the lockout state machine
type BruteForceConfig struct {
	MaxAttempts       int
	LockoutDuration   time.Duration
	ResetWindow       time.Duration
	ProgressiveDelays []time.Duration
}

type TwoFactorConfig struct {
	Issuer          string
	Algorithm       string
	BackupCodeCount int
	MinResponseTime time.Duration
	EncryptionKey   []byte // AES-256 key for secrets at rest; nil stores them unencrypted
}

type AuditConfig struct {
	Async        bool
	QueueSize    int
	ScanInterval time.Duration
	DetectionOn  bool
}

// NotifierConfig configures lockout alert emails. An empty FromAddress disables them.
type NotifierConfig struct {
	AWSRegion   string
	FromAddress string
}

// DefaultBruteForceConfig returns the standard lockout policy
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
		ResetWindow:     60 * time.Minute,
		ProgressiveDelays: []time.Duration{
			0,
			1 * time.Second,
			2 * time.Second,
			5 * time.Second,
			10 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")
	bf := DefaultBruteForceConfig()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			StatementTimeout:  getEnvAsDuration("DB_STATEMENT_TIMEOUT", 5*time.Second),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			RateLimit:      getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
			CallerLimit:    getEnvAsInt("SERVICE_RATE_LIMIT_PER_MINUTE", 6000),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
		},
		BruteForce: BruteForceConfig{
			MaxAttempts:       getEnvAsInt("BRUTE_FORCE_MAX_ATTEMPTS", bf.MaxAttempts),
			LockoutDuration:   getEnvAsDuration("BRUTE_FORCE_LOCKOUT_DURATION", bf.LockoutDuration),
			ResetWindow:       getEnvAsDuration("BRUTE_FORCE_RESET_WINDOW", bf.ResetWindow),
			ProgressiveDelays: getEnvAsDurationList("BRUTE_FORCE_PROGRESSIVE_DELAYS", bf.ProgressiveDelays),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          getEnv("TOTP_ISSUER", "Bastion"),
			Algorithm:       strings.ToUpper(getEnv("TOTP_ALGORITHM", "SHA1")),
			BackupCodeCount: getEnvAsInt("BACKUP_CODE_COUNT", 8),
			MinResponseTime: getEnvAsDuration("TWO_FACTOR_MIN_RESPONSE_TIME", 500*time.Millisecond),
		},
		Audit: AuditConfig{
			Async:        getEnvAsBool("AUDIT_ASYNC", true),
			QueueSize:    getEnvAsInt("AUDIT_QUEUE_SIZE", 1024),
			ScanInterval: getEnvAsDuration("DETECTION_SCAN_INTERVAL", 15*time.Minute),
			DetectionOn:  getEnvAsBool("DETECTION_SCAN_ENABLED", true),
		},
		Notifier: NotifierConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("SECURITY_ALERT_FROM", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.BruteForce.Validate(); err != nil {
		return nil, err
	}

	key, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}
	if key == nil && env == "production" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required in production environment")
	}
	cfg.TwoFactor.EncryptionKey = key

	switch cfg.TwoFactor.Algorithm {
	case "SHA1", "SHA256", "SHA512":
	default:
		return nil, fmt.Errorf("TOTP_ALGORITHM must be one of SHA1, SHA256, SHA512 (got %s)", cfg.TwoFactor.Algorithm)
	}

	return cfg, nil
}

// Validate rejects policies that could never lock or never allow
func (c BruteForceConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("BRUTE_FORCE_MAX_ATTEMPTS must be at least 1")
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("BRUTE_FORCE_LOCKOUT_DURATION must be positive")
	}
	if c.ResetWindow <= 0 {
		return fmt.Errorf("BRUTE_FORCE_RESET_WINDOW must be positive")
	}
	if len(c.ProgressiveDelays) == 0 {
		return fmt.Errorf("BRUTE_FORCE_PROGRESSIVE_DELAYS must not be empty")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
// parseEncryptionKey decodes a base64 AES-256 key. Empty input yields nil.
func parseEncryptionKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsDurationList parses "0,1s,2s". Any malformed element falls back to the default table.
func getEnvAsDurationList(key string, defaultVal []time.Duration) []time.Duration {
	items := getEnvAsList(key)
	if len(items) == 0 {
		return defaultVal
	}

	out := make([]time.Duration, 0, len(items))
	for _, item := range items {
		if item == "0" {
			out = append(out, 0)
			continue
		}
		d, err := time.ParseDuration(item)
		if err != nil || d < 0 {
			return defaultVal
		}
		out = append(out, d)
	}
	return out
}

package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// SecurityProfileRepository persists lockout counters and two-factor state
type SecurityProfileRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityProfileRepository(db *database.DB) *SecurityProfileRepository {
	return &SecurityProfileRepository{pool: db.Pool}
}

const securityProfileColumns = `
	id, email, failed_login_attempts, locked_until, last_failed_login_at,
	two_factor_enabled, two_factor_secret, two_factor_verified_at, backup_codes,
	created_at, updated_at`

// staleCounterPredicate matches a counter that no longer counts toward lockout:
// an expired lock, or (when unlocked) a last failure older than the reset cutoff.
// $2 is now, $3 is the reset cutoff.
const staleCounterPredicate = `(
	(locked_until IS NOT NULL AND locked_until <= $2)
	OR (locked_until IS NULL AND last_failed_login_at IS NOT NULL AND last_failed_login_at < $3)
)`

func scanSecurityProfileRow(row rowScanner) (*models.SecurityProfile, error) {
	var p models.SecurityProfile
	var backupCodes []string

	err := row.Scan(
		&p.ID, &p.Email, &p.FailedLoginAttempts, &p.LockedUntil, &p.LastFailedLoginAt,
		&p.TwoFactorEnabled, &p.TwoFactorSecret, &p.TwoFactorVerifiedAt, &backupCodes,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if backupCodes == nil {
		backupCodes = []string{}
	}
	p.BackupCodes = backupCodes

	return &p, nil
}

// Create provisions a zeroed profile for a newly registered identity
func (r *SecurityProfileRepository) Create(ctx context.Context, id, email string) (*models.SecurityProfile, error) {
	query := `
		INSERT INTO security_profiles (id, email)
		VALUES ($1, $2)
		RETURNING ` + securityProfileColumns

	p, err := scanSecurityProfileRow(r.pool.QueryRow(ctx, query, id, normalizeEmail(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to create security profile: %w", err)
	}
	return p, nil
}

func (r *SecurityProfileRepository) GetByID(ctx context.Context, id string) (*models.SecurityProfile, error) {
	query := `SELECT ` + securityProfileColumns + ` FROM security_profiles WHERE id = $1`

	p, err := scanSecurityProfileRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get security profile: %w", err)
	}
	return p, nil
}

func (r *SecurityProfileRepository) GetByEmail(ctx context.Context, email string) (*models.SecurityProfile, error) {
	query := `SELECT ` + securityProfileColumns + ` FROM security_profiles WHERE email = $1`

	p, err := scanSecurityProfileRow(r.pool.QueryRow(ctx, query, normalizeEmail(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to get security profile: %w", err)
	}
	return p, nil
}

// ResetStaleCounter zeroes the counter only if it is still stale at now.
// A failure recorded concurrently makes the predicate false and the reset a no-op.
func (r *SecurityProfileRepository) ResetStaleCounter(ctx context.Context, email string, now, resetCutoff time.Time) (bool, error) {
	query := `
		UPDATE security_profiles
		SET failed_login_attempts = 0, locked_until = NULL, last_failed_login_at = NULL, updated_at = $2
		WHERE email = $1 AND ` + staleCounterPredicate

	tag, err := r.pool.Exec(ctx, query, normalizeEmail(email), now, resetCutoff)
	if err != nil {
		return false, fmt.Errorf("failed to reset stale counter: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementFailedAttempts atomically records one failure and arms the lock when the
// new count reaches maxAttempts. A stale counter restarts at 1.
func (r *SecurityProfileRepository) IncrementFailedAttempts(ctx context.Context, email string, now, resetCutoff time.Time, maxAttempts int, lockUntil time.Time) (*models.SecurityProfile, error) {
	query := `
		UPDATE security_profiles
		SET failed_login_attempts = CASE WHEN ` + staleCounterPredicate + ` THEN 1 ELSE failed_login_attempts + 1 END,
		    locked_until = CASE
		        WHEN (CASE WHEN ` + staleCounterPredicate + ` THEN 1 ELSE failed_login_attempts + 1 END) >= $4 THEN $5
		        WHEN ` + staleCounterPredicate + ` THEN NULL
		        ELSE locked_until
		    END,
		    last_failed_login_at = $2,
		    updated_at = $2
		WHERE email = $1
		RETURNING ` + securityProfileColumns

	p, err := scanSecurityProfileRow(r.pool.QueryRow(ctx, query, normalizeEmail(email), now, resetCutoff, maxAttempts, lockUntil))
	if err != nil {
		return nil, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	return p, nil
}

// ResetFailedAttempts clears the counter and any lock
func (r *SecurityProfileRepository) ResetFailedAttempts(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE security_profiles
		SET failed_login_attempts = 0, locked_until = NULL, last_failed_login_at = NULL, updated_at = $2
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to reset failed attempts: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// EnableTwoFactor activates 2FA. It fails with ErrConflict when 2FA is already on.
func (r *SecurityProfileRepository) EnableTwoFactor(ctx context.Context, id, secret string, backupCodeHashes []string, verifiedAt time.Time) error {
	query := `
		UPDATE security_profiles
		SET two_factor_enabled = TRUE, two_factor_secret = $2, two_factor_verified_at = $3,
		    backup_codes = $4, updated_at = $3
		WHERE id = $1 AND two_factor_enabled = FALSE
	`

	tag, err := r.pool.Exec(ctx, query, id, secret, verifiedAt, backupCodeHashes)
	if err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// DisableTwoFactor clears the secret, verification time and backup codes
func (r *SecurityProfileRepository) DisableTwoFactor(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE security_profiles
		SET two_factor_enabled = FALSE, two_factor_secret = NULL, two_factor_verified_at = NULL,
		    backup_codes = '{}', updated_at = $2
		WHERE id = $1 AND two_factor_enabled = TRUE
	`

	tag, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.missOrNotEnabled(ctx, id)
	}
	return nil
}

// ReplaceBackupCodes swaps the whole hash list
func (r *SecurityProfileRepository) ReplaceBackupCodes(ctx context.Context, id string, backupCodeHashes []string, now time.Time) error {
	query := `
		UPDATE security_profiles
		SET backup_codes = $2, updated_at = $3
		WHERE id = $1 AND two_factor_enabled = TRUE
	`

	tag, err := r.pool.Exec(ctx, query, id, backupCodeHashes, now)
	if err != nil {
		return fmt.Errorf("failed to replace backup codes: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.missOrNotEnabled(ctx, id)
	}
	return nil
}

// ConsumeBackupCode removes hash from the list if present, in one statement.
// Of two concurrent callers with the same hash, exactly one sees consumed=true.
func (r *SecurityProfileRepository) ConsumeBackupCode(ctx context.Context, id, hash string, now time.Time) (remaining int, consumed bool, err error) {
	query := `
		UPDATE security_profiles
		SET backup_codes = array_remove(backup_codes, $2), updated_at = $3
		WHERE id = $1 AND two_factor_enabled = TRUE AND $2 = ANY(backup_codes)
		RETURNING cardinality(backup_codes)
	`

	err = r.pool.QueryRow(ctx, query, id, hash, now).Scan(&remaining)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to consume backup code: %w", mapped)
	}
	return remaining, true, nil
}

func (r *SecurityProfileRepository) missOrConflict(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return models.ErrConflict
}

func (r *SecurityProfileRepository) missOrNotEnabled(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return models.ErrTwoFactorNotEnabled
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

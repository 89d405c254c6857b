package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogRepository handles audit log data access. Rows are only ever inserted.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

const auditLogColumns = `
	id, user_id, email, event_type, ip_address, user_agent, device_fingerprint,
	location, metadata, success, error_message, created_at`

// scanAuditLogRow handles nullable fields and populates an AuditLogEntry from a database row
func scanAuditLogRow(row rowScanner) (*models.AuditLogEntry, error) {
	var entry models.AuditLogEntry
	var eventType string

	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Email, &eventType, &entry.IPAddress,
		&entry.UserAgent, &entry.DeviceFingerprint, &entry.Location, &entry.Metadata,
		&entry.Success, &entry.ErrorMessage, &entry.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	entry.EventType = models.AuthEventType(eventType)
	return &entry, nil
}

// scanAuditLogRows iterates through rows and scans each into AuditLogEntry models
func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLogEntry, error) {
	defer rows.Close()

	entries := make([]*models.AuditLogEntry, 0)

	for rows.Next() {
		entry, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return entries, nil
}

// Create appends one entry. created_at is assigned by the database.
func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (
			user_id, email, event_type, ip_address, user_agent, device_fingerprint,
			location, metadata, success, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		entry.UserID, entry.Email, string(entry.EventType), entry.IPAddress, entry.UserAgent,
		entry.DeviceFingerprint, entry.Location, entry.Metadata, entry.Success, entry.ErrorMessage,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}

	return nil
}

// buildAuditFilter renders the WHERE clause for f, numbering placeholders from 1
func buildAuditFilter(f models.AuditLogFilter) (string, []any) {
	conds := make([]string, 0, 5)
	args := make([]any, 0, 5)

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Email != "" {
		add("email = $%d", normalizeEmail(f.Email))
	}
	if len(f.EventTypes) > 0 {
		types := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", types)
	}
	if f.Success != nil {
		add("success = $%d", *f.Success)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns entries matching f, newest first
func (r *AuditLogRepository) List(ctx context.Context, f models.AuditLogFilter) ([]*models.AuditLogEntry, error) {
	where, args := buildAuditFilter(f)
	query := `SELECT ` + auditLogColumns + ` FROM audit_logs` + where + ` ORDER BY created_at DESC`

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	return scanAuditLogRows(rows)
}

// Count returns the number of entries matching f (Limit is ignored)
func (r *AuditLogRepository) Count(ctx context.Context, f models.AuditLogFilter) (int64, error) {
	where, args := buildAuditFilter(f)

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}

// CountDistinctIPs counts distinct non-null IP addresses among entries matching f
func (r *AuditLogRepository) CountDistinctIPs(ctx context.Context, f models.AuditLogFilter) (int64, error) {
	where, args := buildAuditFilter(f)

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT ip_address) FROM audit_logs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct ip addresses: %w", err)
	}
	return count, nil
}

// Stats aggregates login and account events created at or after since
func (r *AuditLogRepository) Stats(ctx context.Context, since time.Time) (*models.AuditLogStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE event_type IN ('login_success', 'login_failed', 'account_locked')),
			COUNT(*) FILTER (WHERE event_type IN ('login_failed', 'account_locked')),
			COUNT(*) FILTER (WHERE event_type = 'login_success'),
			COUNT(DISTINCT COALESCE(user_id, email)),
			COUNT(*) FILTER (WHERE event_type = 'password_reset_requested'),
			COUNT(*) FILTER (WHERE event_type = 'account_locked')
		FROM audit_logs
		WHERE created_at >= $1
	`

	var s models.AuditLogStats
	err := r.pool.QueryRow(ctx, query, since).Scan(
		&s.TotalLogins, &s.FailedLogins, &s.SuccessfulLogins,
		&s.UniqueUsers, &s.PasswordResets, &s.AccountLockouts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit logs: %w", err)
	}
	return &s, nil
}

// ListEmailsWithFailures returns identities with at least minFailures failed logins since since
func (r *AuditLogRepository) ListEmailsWithFailures(ctx context.Context, since time.Time, minFailures int) ([]string, error) {
	query := `
		SELECT email
		FROM audit_logs
		WHERE email IS NOT NULL
		  AND created_at >= $1
		  AND event_type IN ('login_failed', 'account_locked', 'password_reset_requested')
		GROUP BY email
		HAVING COUNT(*) >= $2
		ORDER BY email
	`

	rows, err := r.pool.Query(ctx, query, since, minFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails with failures: %w", err)
	}

	emails, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan emails: %w", err)
	}
	return emails, nil
}

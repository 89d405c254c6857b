package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository reads password hashes from the identity service's users table
type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{pool: db.Pool}
}

// GetPasswordHash returns the bcrypt hash stored for userID
func (r *CredentialRepository) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("failed to get password hash: %w", database.MapPostgresError(err))
	}
	return hash, nil
}

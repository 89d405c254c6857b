package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	other := errors.New("connection reset")
	serialization := &pgconn.PgError{Code: "40001"}

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("query: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"check violation", &pgconn.PgError{Code: "23514"}, models.ErrBadRequest},
		{"malformed uuid", &pgconn.PgError{Code: "22P02"}, models.ErrBadRequest},
		{"other pg error", serialization, serialization},
		{"other error", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapPostgresError(tt.in))
		})
	}
}

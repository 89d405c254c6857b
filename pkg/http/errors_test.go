package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_Helpers(t *testing.T) {
	tests := []struct {
		name     string
		write    func(w http.ResponseWriter, msg string)
		wantCode int
		wantErr  string
	}{
		{"bad request", pkghttp.WriteBadRequest, 400, "bad_request"},
		{"unauthorized", pkghttp.WriteUnauthorized, 401, "unauthorized"},
		{"forbidden", pkghttp.WriteForbidden, 403, "forbidden"},
		{"not found", pkghttp.WriteNotFound, 404, "not_found"},
		{"conflict", pkghttp.WriteConflict, 409, "conflict"},
		{"too many requests", pkghttp.WriteTooManyRequests, 429, "rate_limit_exceeded"},
		{"internal", pkghttp.WriteInternalError, 500, "internal_error"},
		{"unavailable", pkghttp.WriteServiceUnavailable, 503, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "something went wrong")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Error)
			assert.Equal(t, "something went wrong", resp.Message)
			assert.Empty(t, resp.Details)
		})
	}
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteErrorWithDetails(w, 400, "validation_error", "Invalid input", "code is required")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "code is required", resp.Details)
}

func TestWriteAccountLocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lockedUntil := now.Add(14*time.Minute + 30*time.Second)

	w := httptest.NewRecorder()
	pkghttp.WriteAccountLocked(w, lockedUntil, now)

	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, "870", w.Header().Get("Retry-After"))

	var resp pkghttp.LockedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "account_locked", resp.Error)
	assert.True(t, lockedUntil.Equal(resp.LockedUntil))
}

func TestWriteAccountLocked_MinimumRetryAfter(t *testing.T) {
	now := time.Now()

	w := httptest.NewRecorder()
	pkghttp.WriteAccountLocked(w, now.Add(-time.Second), now)

	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteJSON(w, http.StatusCreated, map[string]int{"count": 8})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"count":8}`, w.Body.String())
}

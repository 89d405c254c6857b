package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	req := httptest.NewRequest("GET", "/v1/2fa/status?code=123456", nil)
	w := httptest.NewRecorder()
	SecureLogger(logger)(okHandler()).ServeHTTP(w, req)

	if strings.Contains(buf.String(), "123456") {
		t.Fatalf("log line leaked query value: %s", buf.String())
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["path"] != "/v1/2fa/status?[REDACTED]" {
		t.Errorf("unexpected path %v", line["path"])
	}
	if line["level"] != "INFO" {
		t.Errorf("expected INFO level, got %v", line["level"])
	}
}

func TestSecureLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusLocked, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		h := SecureLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/guard/check", nil))

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		if line["level"] != tt.level {
			t.Errorf("status %d: got level %v, want %s", tt.status, line["level"], tt.level)
		}
	}
}

package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders_Defaults(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{Env: "development"})

	req := httptest.NewRequest("GET", "/v1/2fa/status", nil)
	w := httptest.NewRecorder()
	handler(okHandler()).ServeHTTP(w, req)

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Cache-Control", "no-store"},
	}

	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.expected {
			t.Errorf("Header %s: got %q, want %q", tt.header, got, tt.expected)
		}
	}

	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS should not be set outside production: %s", hsts)
	}
}

func TestSecurityHeaders_ProductionHSTS(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{Env: "production"})

	// plain HTTP: no HSTS
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler(okHandler()).ServeHTTP(w, req)
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS should not be sent over plain HTTP: %s", hsts)
	}

	// behind a TLS-terminating proxy
	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	handler(okHandler()).ServeHTTP(w, req)
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts == "" {
		t.Error("HSTS header missing in production over HTTPS")
	}
}

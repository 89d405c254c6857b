package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// AuditEvent is the local-sink representation of an audit trail entry
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]any
}

// AuditLogger writes audit events as structured log lines. It is the fallback
// sink when the audit store cannot accept an entry.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogFallback records an event that could not be persisted, together with the reason
func (al *AuditLogger) LogFallback(event AuditEvent, cause string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("fallback_reason", cause),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	if len(event.Metadata) > 0 {
		keys := make([]string, 0, len(event.Metadata))
		for k := range event.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		group := make([]any, 0, len(keys))
		for _, k := range keys {
			group = append(group, slog.String(k, fmt.Sprint(event.Metadata[k])))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is the structured payload for the process-log audit channel.
type AuditEvent struct {
	Action        string
	UserID        string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger is the operational fallback channel for security events.
// Every audit entry is mirrored here before the database write; when
// the database write fails, this line is the durable record, so an
// unloggable security event is still logged somewhere.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent writes one security event to the process log
func (al *AuditLogger) LogSecurityEvent(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("action", event.Action),
		slog.Bool("success", event.Success),
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

	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogPersistFailure records that an audit entry could not be written to
// the database. The event itself has already been mirrored by
// LogSecurityEvent; this marks the entry as process-log-only.
func (al *AuditLogger) LogPersistFailure(action string, err error) {
	al.logger.LogAttrs(context.Background(), slog.LevelError, "audit persist failed",
		slog.String("audit_type", "security"),
		slog.String("action", action),
		slog.Any("error", err),
	)
}

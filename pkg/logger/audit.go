package logger

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	Country       string
	DeviceType    string
	Success       bool
	FailureReason string
	AttackType    string
	Confidence    float64
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogLoginAttempt logs one analyzed login attempt. Attacks and failures are logged at warn level.
func (al *AuditLogger) LogLoginAttempt(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "login"),
		slog.String("event_type", event.EventType),
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
	if event.Country != "" {
		attrs = append(attrs, slog.String("country", event.Country))
	}
	if event.DeviceType != "" {
		attrs = append(attrs, slog.String("device_type", event.DeviceType))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	if event.AttackType != "" {
		attrs = append(attrs,
			slog.String("attack_type", event.AttackType),
			slog.Float64("confidence", event.Confidence))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success || event.AttackType != "" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAnomalies logs anomalies detected for an origin
func (al *AuditLogger) LogAnomalies(ctx context.Context, ipAddress string, anomalies []string) {
	if len(anomalies) == 0 {
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "anomalies detected",
		slog.String("audit_type", "anomaly"),
		slog.String("ip_address", ipAddress),
		slog.String("anomalies", strings.Join(anomalies, ",")),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}

// LogAdminAction logs dashboard operations that change state
func (al *AuditLogger) LogAdminAction(ctx context.Context, eventType, actorID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "admin"),
		slog.String("event_type", eventType),
		slog.String("actor_id", actorID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const securityEventColumns = `
	id, log_id, session_token, occurred_at, email, anonymized_user,
	ip_address, country, region, city, user_agent, browser, os, device_type,
	login_successful, failure_reason, is_attack, detection, anomalies`

// SecurityEventRepository stores security events in PostgreSQL
type SecurityEventRepository struct {
	db *database.DB
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// Name identifies the repository as an event sink
func (r *SecurityEventRepository) Name() string {
	return "postgres"
}

// Write inserts one security event
func (r *SecurityEventRepository) Write(ctx context.Context, ev *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (` + securityEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	anomalies := ev.Anomalies
	if anomalies == nil {
		anomalies = []string{}
	}

	_, err := r.db.Pool.Exec(ctx, query,
		ev.ID,
		ev.LogID,
		ev.SessionToken,
		ev.Timestamp,
		ev.Email,
		ev.AnonymizedUser,
		ev.IPAddress,
		ev.Country,
		ev.Region,
		ev.City,
		ev.UserAgent,
		ev.Browser,
		ev.OS,
		ev.DeviceType,
		ev.LoginSuccessful,
		ev.FailureReason,
		ev.IsAttack,
		ev.Detection,
		pq.Array(anomalies),
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", database.MapPostgresError(err))
	}

	return nil
}

// ListRecent returns the newest events first
func (r *SecurityEventRepository) ListRecent(ctx context.Context, limit int) ([]models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// ReadSince returns events at or after since, oldest first
func (r *SecurityEventRepository) ReadSince(ctx context.Context, since time.Time) ([]models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE occurred_at >= $1
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// CountAttacks returns the number of stored events flagged as attacks
func (r *SecurityEventRepository) CountAttacks(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM security_events WHERE is_attack`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attacks: %w", err)
	}
	return count, nil
}

func scanSecurityEventRow(row rowScanner) (models.SecurityEvent, error) {
	var ev models.SecurityEvent

	err := row.Scan(
		&ev.ID, &ev.LogID, &ev.SessionToken, &ev.Timestamp, &ev.Email, &ev.AnonymizedUser,
		&ev.IPAddress, &ev.Country, &ev.Region, &ev.City, &ev.UserAgent, &ev.Browser, &ev.OS, &ev.DeviceType,
		&ev.LoginSuccessful, &ev.FailureReason, &ev.IsAttack, &ev.Detection, pq.Array(&ev.Anomalies),
	)
	if err != nil {
		return ev, database.MapPostgresError(err)
	}

	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]models.SecurityEvent, 0)
	for rows.Next() {
		ev, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

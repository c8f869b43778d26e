package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger implements audit logging to PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit sink.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure access_audit table: %w", err)
	}
	return logger, nil
}

// ensureTable creates the access_audit table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS access_audit (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		subject_id VARCHAR(255),
		anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		organization_id VARCHAR(64),
		operation VARCHAR(100),
		minimum_role VARCHAR(20),
		matched_role VARCHAR(20),
		reason VARCHAR(50),
		source VARCHAR(30),
		request_id VARCHAR(100),
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_access_audit_timestamp ON access_audit(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_access_audit_subject ON access_audit(subject_id);
	CREATE INDEX IF NOT EXISTS idx_access_audit_org ON access_audit(organization_id);
	CREATE INDEX IF NOT EXISTS idx_access_audit_status ON access_audit(status);
	`
	_, err := l.db.Exec(query)
	return err
}

// Log writes an audit event to the database.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO access_audit (
			timestamp, event_type, status,
			subject_id, anonymous, organization_id,
			operation, minimum_role, matched_role, reason, source,
			request_id, message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.SubjectID, event.Anonymous, event.OrganizationID,
		event.Operation, event.MinimumRole, event.MatchedRole, event.Reason, event.Source,
		event.RequestID, event.Message, metadataJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Sweep deletes events older than the retention policy allows and returns
// how many rows were removed. Intended to run on a schedule.
func (l *DBLogger) Sweep(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.RetentionDays <= 0 {
		policy = DefaultRetentionPolicy()
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -policy.RetentionDays)

	result, err := l.db.ExecContext(ctx, `DELETE FROM access_audit WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep audit events: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the caller owns the database connection.
func (l *DBLogger) Close() error {
	return nil
}

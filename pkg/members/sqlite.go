package members

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/assembly-hq/assembly/pkg/authz"
)

// SQLiteStore implements Store over SQLite for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a SQLite-backed membership store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS organization_members (
		subject_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		role TEXT NOT NULL,
		added_by TEXT,
		joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (subject_id, organization_id)
	);
	CREATE INDEX IF NOT EXISTS idx_org_members_org ON organization_members(organization_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to ensure organization_members table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LookupRole returns the stored role for (subject, organization).
func (s *SQLiteStore) LookupRole(ctx context.Context, subjectID, organizationID string) (authz.Role, bool, error) {
	query := `SELECT role FROM organization_members WHERE subject_id = ? AND organization_id = ?`

	var stored string
	err := s.db.QueryRowContext(ctx, query, subjectID, organizationID).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up membership: %w", err)
	}

	role, err := authz.ParseRole(stored)
	if err != nil {
		return "", false, fmt.Errorf("corrupt membership row for subject %q at org %q: %w", subjectID, organizationID, err)
	}
	return role, true, nil
}

// AddMember enrolls a subject into an organization.
func (s *SQLiteStore) AddMember(ctx context.Context, m Membership) error {
	query := `
		INSERT INTO organization_members (subject_id, organization_id, role, added_by, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (subject_id, organization_id) DO NOTHING
	`
	joinedAt := m.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, query, m.SubjectID, m.OrganizationID, m.Role, nullIfEmpty(m.AddedBy), joinedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member already exists")
	}
	return nil
}

// UpdateMemberRole changes an existing member's role.
func (s *SQLiteStore) UpdateMemberRole(ctx context.Context, subjectID, organizationID string, role authz.Role) error {
	query := `UPDATE organization_members SET role = ? WHERE subject_id = ? AND organization_id = ?`
	result, err := s.db.ExecContext(ctx, query, role, subjectID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// RemoveMember removes a subject from an organization.
func (s *SQLiteStore) RemoveMember(ctx context.Context, subjectID, organizationID string) error {
	query := `DELETE FROM organization_members WHERE subject_id = ? AND organization_id = ?`
	result, err := s.db.ExecContext(ctx, query, subjectID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// ListMembers returns all memberships of an organization.
func (s *SQLiteStore) ListMembers(ctx context.Context, organizationID string) ([]Membership, error) {
	query := `
		SELECT subject_id, organization_id, role, added_by, joined_at
		FROM organization_members
		WHERE organization_id = ?
		ORDER BY joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

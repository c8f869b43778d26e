// Package members provides the persistent organization membership store.
// It backs the authorization engine's slow path (a read-only point lookup)
// and the management operations that change memberships — the very writes
// that make already-issued tokens stale.
package members

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/assembly-hq/assembly/pkg/authz"
)

// Membership represents a stored membership row.
type Membership struct {
	SubjectID      string     `json:"subject_id"`
	OrganizationID string     `json:"organization_id"`
	Role           authz.Role `json:"role"`
	AddedBy        string     `json:"added_by,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
}

// Store manages organization memberships.
type Store interface {
	authz.MembershipStore

	// AddMember enrolls a subject into an organization with the given role.
	AddMember(ctx context.Context, m Membership) error

	// UpdateMemberRole changes an existing member's role.
	UpdateMemberRole(ctx context.Context, subjectID, organizationID string, role authz.Role) error

	// RemoveMember removes a subject from an organization.
	RemoveMember(ctx context.Context, subjectID, organizationID string) error

	// ListMembers returns all memberships of an organization.
	ListMembers(ctx context.Context, organizationID string) ([]Membership, error)
}

// PostgresStore implements Store over PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a membership store over the given connection.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the membership table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS organization_members (
		subject_id VARCHAR(255) NOT NULL,
		organization_id VARCHAR(64) NOT NULL,
		role VARCHAR(20) NOT NULL,
		added_by VARCHAR(255),
		joined_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (subject_id, organization_id)
	);

	CREATE INDEX IF NOT EXISTS idx_org_members_org ON organization_members(organization_id);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure organization_members table: %w", err)
	}
	return nil
}

// LookupRole returns the stored role for (subject, organization). This is
// the single point lookup the authorization fallback path depends on.
func (s *PostgresStore) LookupRole(ctx context.Context, subjectID, organizationID string) (authz.Role, bool, error) {
	query := `SELECT role FROM organization_members WHERE subject_id = $1 AND organization_id = $2`

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
func (s *PostgresStore) AddMember(ctx context.Context, m Membership) error {
	query := `
		INSERT INTO organization_members (subject_id, organization_id, role, added_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id, organization_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, m.SubjectID, m.OrganizationID, m.Role, nullIfEmpty(m.AddedBy))
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
func (s *PostgresStore) UpdateMemberRole(ctx context.Context, subjectID, organizationID string, role authz.Role) error {
	query := `UPDATE organization_members SET role = $1 WHERE subject_id = $2 AND organization_id = $3`
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
func (s *PostgresStore) RemoveMember(ctx context.Context, subjectID, organizationID string) error {
	query := `DELETE FROM organization_members WHERE subject_id = $1 AND organization_id = $2`
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
func (s *PostgresStore) ListMembers(ctx context.Context, organizationID string) ([]Membership, error) {
	query := `
		SELECT subject_id, organization_id, role, added_by, joined_at
		FROM organization_members
		WHERE organization_id = $1
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

func scanMembership(rows *sql.Rows) (Membership, error) {
	var m Membership
	var role string
	var addedBy sql.NullString
	if err := rows.Scan(&m.SubjectID, &m.OrganizationID, &role, &addedBy, &m.JoinedAt); err != nil {
		return Membership{}, fmt.Errorf("failed to scan membership: %w", err)
	}
	m.Role = authz.Role(role)
	if addedBy.Valid {
		m.AddedBy = addedBy.String
	}
	return m, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

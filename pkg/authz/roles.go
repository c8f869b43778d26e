package authz

import "fmt"

// Role represents an organization-level role
type Role string

const (
	RoleMember    Role = "member"    // Regular member of an organization
	RoleModerator Role = "moderator" // Can moderate organization content
	RoleAdmin     Role = "admin"     // Can manage members and settings
	RolePresident Role = "president" // Full control over the organization
)

// roleRanks defines the total order between roles.
// A higher rank always satisfies a requirement for a lower one.
var roleRanks = map[Role]int{
	RoleMember:    0,
	RoleModerator: 1,
	RoleAdmin:     2,
	RolePresident: 3,
}

// roleCodes maps each role to its single-character token code.
var roleCodes = map[Role]byte{
	RolePresident: 'P',
	RoleAdmin:     'A',
	RoleModerator: 'O',
	RoleMember:    'M',
}

// rolesByCode is the inverse of roleCodes.
var rolesByCode = map[byte]Role{
	'P': RolePresident,
	'A': RoleAdmin,
	'O': RoleModerator,
	'M': RoleMember,
}

// Valid reports whether the role is one of the four known roles.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the role's position in the hierarchy (MEMBER=0 .. PRESIDENT=3).
// Unknown roles rank below MEMBER so they never satisfy any requirement.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// Satisfies reports whether a principal holding this role meets the
// given minimum role requirement.
func (r Role) Satisfies(need Role) bool {
	return r.Valid() && r.Rank() >= need.Rank()
}

// Code returns the single-character token code for the role.
func (r Role) Code() byte {
	return roleCodes[r]
}

// RoleFromCode returns the role identified by a token code character.
func RoleFromCode(c byte) (Role, bool) {
	role, ok := rolesByCode[c]
	return role, ok
}

// ParseRole parses a stored role name (e.g. from the membership store).
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

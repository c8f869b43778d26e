package authz

import (
	"errors"
	"fmt"
)

// ErrMalformedClaim indicates a token claim entry that could not be decoded.
// Malformed entries are skipped during list decoding; they never abort a request.
var ErrMalformedClaim = errors.New("malformed membership claim")

// MembershipClaim is a single fact asserting a principal's role within
// one organization. It is a value type: two claims are equal iff both
// fields are equal.
type MembershipClaim struct {
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id"`
}

// Encode renders the claim as its compact token form: the role's
// single-character code followed by the decimal organization id
// (e.g. "P123" for president of organization 123).
func (c MembershipClaim) Encode() string {
	return string(c.Role.Code()) + c.OrganizationID
}

// DecodeClaim parses one compact token entry. The first character must be
// a known role code and the full remainder must be a non-empty decimal
// organization id. The organization id is kept whole; matching later is
// exact string equality, never a suffix test, so a claim for organization
// "2" can never be mistaken for "12" or "32".
func DecodeClaim(s string) (MembershipClaim, error) {
	if s == "" {
		return MembershipClaim{}, fmt.Errorf("%w: empty entry", ErrMalformedClaim)
	}

	role, ok := RoleFromCode(s[0])
	if !ok {
		return MembershipClaim{}, fmt.Errorf("%w: unknown role code %q", ErrMalformedClaim, s[0])
	}

	orgID := s[1:]
	if orgID == "" {
		return MembershipClaim{}, fmt.Errorf("%w: missing organization id", ErrMalformedClaim)
	}
	if !isCanonicalOrgID(orgID) {
		return MembershipClaim{}, fmt.Errorf("%w: invalid organization id %q", ErrMalformedClaim, orgID)
	}

	return MembershipClaim{Role: role, OrganizationID: orgID}, nil
}

// DecodeClaims decodes a token claim list. Malformed entries are skipped
// and returned separately so the caller can audit them; decoding of the
// remaining entries always continues.
func DecodeClaims(entries []string) (claims []MembershipClaim, malformed []string) {
	for _, entry := range entries {
		claim, err := DecodeClaim(entry)
		if err != nil {
			malformed = append(malformed, entry)
			continue
		}
		claims = append(claims, claim)
	}
	return claims, malformed
}

// isCanonicalOrgID reports whether s is a canonical decimal organization id:
// digits only, no sign, no leading zeros (a bare "0" is allowed).
func isCanonicalOrgID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	return true
}

// Principal is the authenticated (or explicitly anonymous) actor making a
// request. It is constructed once per request from the incoming token and
// is immutable afterward. Anonymity is an explicit flag, never a sentinel
// subject value compared by equality.
type Principal struct {
	SubjectID string
	Claims    []MembershipClaim
	Anonymous bool
}

// NewPrincipal builds an authenticated principal from the raw token claim
// list. Malformed entries are dropped and returned for auditing.
func NewPrincipal(subjectID string, rawClaims []string) (Principal, []string) {
	claims, malformed := DecodeClaims(rawClaims)
	return Principal{SubjectID: subjectID, Claims: claims}, malformed
}

// AnonymousPrincipal returns the principal used for unauthenticated requests.
func AnonymousPrincipal() Principal {
	return Principal{Anonymous: true}
}

// withClaim returns a copy of the principal augmented with one extra claim.
// Used by the guard to re-evaluate after a successful fallback lookup; the
// original principal is never mutated.
func (p Principal) withClaim(claim MembershipClaim) Principal {
	claims := make([]MembershipClaim, 0, len(p.Claims)+1)
	claims = append(claims, p.Claims...)
	claims = append(claims, claim)
	return Principal{SubjectID: p.SubjectID, Claims: claims, Anonymous: p.Anonymous}
}

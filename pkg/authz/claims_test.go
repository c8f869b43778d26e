package authz

import (
	"errors"
	"testing"
)

func TestDecodeClaim(t *testing.T) {
	tests := []struct {
		entry string
		want  MembershipClaim
	}{
		{"P123", MembershipClaim{Role: RolePresident, OrganizationID: "123"}},
		{"A31", MembershipClaim{Role: RoleAdmin, OrganizationID: "31"}},
		{"O7", MembershipClaim{Role: RoleModerator, OrganizationID: "7"}},
		{"M0", MembershipClaim{Role: RoleMember, OrganizationID: "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := DecodeClaim(tt.entry)
			if err != nil {
				t.Fatalf("DecodeClaim(%q) returned error: %v", tt.entry, err)
			}
			if got != tt.want {
				t.Errorf("DecodeClaim(%q) = %+v, want %+v", tt.entry, got, tt.want)
			}
		})
	}
}

func TestDecodeClaimMalformed(t *testing.T) {
	entries := []string{
		"",     // empty
		"X12",  // unknown role code
		"m12",  // role codes are case sensitive
		"M",    // missing organization id
		"M01",  // leading zero
		"M-1",  // sign
		"M1a",  // trailing garbage
		"M 1",  // whitespace
		"M1.2", // not decimal
	}

	for _, entry := range entries {
		t.Run(entry, func(t *testing.T) {
			_, err := DecodeClaim(entry)
			if err == nil {
				t.Fatalf("DecodeClaim(%q) unexpectedly succeeded", entry)
			}
			if !errors.Is(err, ErrMalformedClaim) {
				t.Errorf("DecodeClaim(%q) error = %v, want ErrMalformedClaim", entry, err)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	claims := []MembershipClaim{
		{Role: RolePresident, OrganizationID: "1"},
		{Role: RoleAdmin, OrganizationID: "42"},
		{Role: RoleModerator, OrganizationID: "999"},
		{Role: RoleMember, OrganizationID: "0"},
	}

	for _, claim := range claims {
		got, err := DecodeClaim(claim.Encode())
		if err != nil {
			t.Fatalf("round trip of %+v failed: %v", claim, err)
		}
		if got != claim {
			t.Errorf("round trip of %+v = %+v", claim, got)
		}
	}
}

func TestDecodeClaimsSkipsMalformed(t *testing.T) {
	claims, malformed := DecodeClaims([]string{"A10", "bogus", "M5", "X1", "P2"})

	if len(claims) != 3 {
		t.Fatalf("expected 3 decoded claims, got %d", len(claims))
	}
	want := []MembershipClaim{
		{Role: RoleAdmin, OrganizationID: "10"},
		{Role: RoleMember, OrganizationID: "5"},
		{Role: RolePresident, OrganizationID: "2"},
	}
	for i, claim := range claims {
		if claim != want[i] {
			t.Errorf("claims[%d] = %+v, want %+v", i, claim, want[i])
		}
	}

	if len(malformed) != 2 || malformed[0] != "bogus" || malformed[1] != "X1" {
		t.Errorf("malformed = %v, want [bogus X1]", malformed)
	}
}

func TestNewPrincipal(t *testing.T) {
	principal, malformed := NewPrincipal("user-1", []string{"A10", "junk"})

	if principal.Anonymous {
		t.Error("authenticated principal should not be anonymous")
	}
	if principal.SubjectID != "user-1" {
		t.Errorf("SubjectID = %q", principal.SubjectID)
	}
	if len(principal.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(principal.Claims))
	}
	if len(malformed) != 1 || malformed[0] != "junk" {
		t.Errorf("malformed = %v", malformed)
	}
}

func TestAnonymousPrincipal(t *testing.T) {
	principal := AnonymousPrincipal()
	if !principal.Anonymous {
		t.Error("expected Anonymous flag set")
	}
	if principal.SubjectID != "" || len(principal.Claims) != 0 {
		t.Error("anonymous principal must carry no identity or claims")
	}
}

package authz

import (
	"context"
	"fmt"
	"time"
)

// MembershipStore is the persistent membership collaborator consumed by the
// slow path: a read-only point lookup keyed by (subject, organization).
type MembershipStore interface {
	// LookupRole returns the stored role for the subject at the organization,
	// or found=false when no membership exists.
	LookupRole(ctx context.Context, subjectID, organizationID string) (Role, bool, error)
}

// DefaultFallbackTimeout bounds how long a fallback lookup may block.
const DefaultFallbackTimeout = 2 * time.Second

// FallbackVerifier re-derives a membership fact from the persistent store
// when token claims are missing or stale. It is the only point in the
// authorization path allowed to suspend on I/O; every lookup runs under a
// bounded timeout and is never retried, keeping authorization latency
// predictable.
type FallbackVerifier struct {
	store   MembershipStore
	timeout time.Duration
}

// NewFallbackVerifier creates a verifier over the given membership store.
// A non-positive timeout falls back to DefaultFallbackTimeout.
func NewFallbackVerifier(store MembershipStore, timeout time.Duration) *FallbackVerifier {
	if timeout <= 0 {
		timeout = DefaultFallbackTimeout
	}
	return &FallbackVerifier{store: store, timeout: timeout}
}

// Verify looks up the subject's membership at the organization and, when
// present, synthesizes a one-off claim consumable by Evaluate.
func (v *FallbackVerifier) Verify(ctx context.Context, subjectID, organizationID string) (MembershipClaim, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	role, found, err := v.store.LookupRole(ctx, subjectID, organizationID)
	if err != nil {
		return MembershipClaim{}, false, fmt.Errorf("membership lookup for subject %q at org %q: %w", subjectID, organizationID, err)
	}
	if !found {
		return MembershipClaim{}, false, nil
	}
	return MembershipClaim{Role: role, OrganizationID: organizationID}, true, nil
}

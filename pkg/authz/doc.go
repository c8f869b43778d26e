// Package authz implements organization-scoped, role-based access control
// driven by compact token-carried membership claims.
//
// # Overview
//
// A principal's token carries one claim entry per organization membership,
// encoded as a single role code letter followed by the organization id
// ("A31" reads as admin of organization 31). Authorization for a request is
// decided from those claims alone on the fast path; the membership store is
// consulted only on explicitly configured slow paths.
//
// # Roles
//
// Four roles form a strict ladder:
//
//	RoleMember    (code 'M') - baseline membership
//	RoleModerator (code 'O') - content moderation
//	RoleAdmin     (code 'A') - organization administration
//	RolePresident (code 'P') - organization ownership
//
// A role satisfies a requirement when its rank is greater than or equal to
// the required role's rank. Unknown roles never satisfy anything.
//
// # Claims
//
// DecodeClaims parses the raw claim list from a token. Malformed entries
// (unknown code letter, empty or non-canonical organization id) are skipped
// and reported rather than failing the request, so one corrupt entry cannot
// lock a subject out of their other organizations. Organization ids match by
// full string equality only; "2" never satisfies a check for "12".
//
// # Evaluation
//
// Evaluate is the pure fast-path decision over a principal's claims:
//
//	decision := authz.Evaluate(principal, orgID, authz.RoleAdmin)
//	if !decision.Allowed {
//		// decision.Reason is one of the denial reason codes
//	}
//
// Anonymous principals are always denied by Evaluate. Routes that must stay
// open to anonymous callers go through the guard's explicitly named bypass
// entry point instead.
//
// # Guard
//
// Guard wraps Evaluate with the operational concerns of a live service:
//
//	guard := authz.NewGuard(authz.GuardConfig{
//		Verifier: authz.NewFallbackVerifier(store, 2*time.Second),
//		Limiter:  limiter,
//		Recorder: recorder,
//	})
//	decision := guard.RequireRole(ctx, principal, orgID, authz.RoleAdmin, "org.members.add", opts)
//
// The guard consults the membership store when the token's claims failed to
// parse, or when a NotAMember denial occurs on an operation configured with
// verify-before-deny. A store error or timeout produces a FallbackUnavailable
// denial; the request is never retried. When the store contradicts the fast
// path a discrepancy is recorded for the audit trail.
//
// Rate-limited operations consult the limiter after a grant; exceeding the
// window converts the grant into a RateLimited denial. Decisions are never
// cached.
//
// # Related Packages
//
//   - pkg/members: membership store backing the fallback verifier
//   - pkg/ratelimit: fixed-window limiter implementations
//   - pkg/audit: decision and discrepancy recording
//   - pkg/middleware: HTTP integration
package authz

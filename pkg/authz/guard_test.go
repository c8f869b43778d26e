package authz

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type stubStore struct {
	role  Role
	found bool
	err   error
	calls int
}

func (s *stubStore) LookupRole(ctx context.Context, subjectID, organizationID string) (Role, bool, error) {
	s.calls++
	return s.role, s.found, s.err
}

// blockingStore never answers; lookups only end when the context does.
type blockingStore struct{}

func (blockingStore) LookupRole(ctx context.Context, subjectID, organizationID string) (Role, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

type stubLimiter struct {
	allow bool
	err   error
	calls int
}

func (l *stubLimiter) Allow(ctx context.Context, subjectID, operationKey string) (bool, error) {
	l.calls++
	return l.allow, l.err
}

type recordingRecorder struct {
	decisions     []AccessDecision
	discrepancies int
}

func (r *recordingRecorder) RecordDecision(ctx context.Context, req AccessRequest, decision AccessDecision) {
	r.decisions = append(r.decisions, decision)
}

func (r *recordingRecorder) RecordDiscrepancy(ctx context.Context, req AccessRequest, fast, slow AccessDecision) {
	r.discrepancies++
}

func newTestGuard(store MembershipStore, limiter RateLimiter, recorder DecisionRecorder) *Guard {
	cfg := GuardConfig{Limiter: limiter, Recorder: recorder}
	if store != nil {
		cfg.Verifier = NewFallbackVerifier(store, time.Second)
	}
	return NewGuard(cfg)
}

func TestGuardRequireRoleDeniesAnonymous(t *testing.T) {
	guard := newTestGuard(nil, nil, nil)

	// RequireRole must ignore an AllowAnonymous flag; only the legacy entry
	// point honors it.
	decision := guard.RequireRole(context.Background(), AnonymousPrincipal(), "10", RoleMember, "op.read", CheckOptions{AllowAnonymous: true})

	if decision.Allowed {
		t.Fatal("anonymous principal must be denied by RequireRole")
	}
	if decision.Reason != ReasonAnonymousDenied {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonAnonymousDenied)
	}
	if decision.HTTPStatus() != http.StatusUnauthorized {
		t.Errorf("HTTPStatus = %d, want 401", decision.HTTPStatus())
	}
}

func TestGuardAnonymousBypass(t *testing.T) {
	recorder := &recordingRecorder{}
	guard := newTestGuard(nil, nil, recorder)

	decision := guard.RequireRoleOrBypassForAnonymousLegacy(context.Background(), AnonymousPrincipal(), "10", RoleMember, "op.legacy", CheckOptions{AllowAnonymous: true})

	if !decision.Allowed {
		t.Fatalf("expected bypass grant, got %s", decision.Reason)
	}
	if decision.Source != SourceAnonymousBypass {
		t.Errorf("Source = %s, want %s", decision.Source, SourceAnonymousBypass)
	}
	if len(recorder.decisions) != 1 {
		t.Errorf("expected 1 recorded decision, got %d", len(recorder.decisions))
	}
}

func TestGuardLegacyEntryPointStillChecksAuthenticated(t *testing.T) {
	guard := newTestGuard(nil, nil, nil)
	principal := principalWith("user-1", "M5")

	decision := guard.RequireRoleOrBypassForAnonymousLegacy(context.Background(), principal, "5", RoleAdmin, "op.legacy", CheckOptions{AllowAnonymous: true})

	if decision.Allowed {
		t.Fatal("authenticated principal must go through the normal check")
	}
	if decision.Reason != ReasonInsufficientRole {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonInsufficientRole)
	}
}

func TestGuardFastPathGrantSkipsStore(t *testing.T) {
	store := &stubStore{role: RoleAdmin, found: true}
	guard := newTestGuard(store, nil, nil)
	principal := principalWith("user-1", "A10")

	decision := guard.RequireRole(context.Background(), principal, "10", RoleAdmin, "op.write", CheckOptions{VerifyBeforeDeny: true})

	if !decision.Allowed {
		t.Fatalf("expected grant, got %s", decision.Reason)
	}
	if decision.Source != SourceClaim {
		t.Errorf("Source = %s, want %s", decision.Source, SourceClaim)
	}
	if store.calls != 0 {
		t.Errorf("store consulted %d times on a fast-path grant", store.calls)
	}
}

func TestGuardNoFallbackWithoutOptIn(t *testing.T) {
	store := &stubStore{role: RoleAdmin, found: true}
	guard := newTestGuard(store, nil, nil)
	principal := principalWith("user-1", "A10")

	decision := guard.RequireRole(context.Background(), principal, "99", RoleMember, "op.read", CheckOptions{})

	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if decision.Reason != ReasonNotAMember {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonNotAMember)
	}
	if store.calls != 0 {
		t.Errorf("store consulted %d times without verify-before-deny", store.calls)
	}
}

func TestGuardVerifyBeforeDenyGrants(t *testing.T) {
	store := &stubStore{role: RoleAdmin, found: true}
	recorder := &recordingRecorder{}
	guard := newTestGuard(store, nil, recorder)
	principal := principalWith("user-1", "M5") // token predates the org 99 enrollment

	decision := guard.RequireRole(context.Background(), principal, "99", RoleAdmin, "op.write", CheckOptions{VerifyBeforeDeny: true})

	if !decision.Allowed {
		t.Fatalf("expected fallback grant, got %s", decision.Reason)
	}
	if decision.Source != SourceFallback {
		t.Errorf("Source = %s, want %s", decision.Source, SourceFallback)
	}
	if store.calls != 1 {
		t.Errorf("store consulted %d times, want 1", store.calls)
	}
	if recorder.discrepancies != 1 {
		t.Errorf("discrepancies = %d, want 1", recorder.discrepancies)
	}
}

func TestGuardVerifyBeforeDenyMiss(t *testing.T) {
	store := &stubStore{found: false}
	recorder := &recordingRecorder{}
	guard := newTestGuard(store, nil, recorder)
	principal := principalWith("user-1", "M5")

	decision := guard.RequireRole(context.Background(), principal, "99", RoleMember, "op.read", CheckOptions{VerifyBeforeDeny: true})

	if decision.Allowed {
		t.Fatal("expected denial on store miss")
	}
	if decision.Reason != ReasonNotAMember {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonNotAMember)
	}
	if decision.Source != SourceFallback {
		t.Errorf("Source = %s, want %s", decision.Source, SourceFallback)
	}
	if recorder.discrepancies != 0 {
		t.Errorf("discrepancies = %d, want 0 when verdicts agree", recorder.discrepancies)
	}
}

func TestGuardInsufficientRoleNeverFallsBack(t *testing.T) {
	store := &stubStore{role: RolePresident, found: true}
	guard := newTestGuard(store, nil, nil)
	principal := principalWith("user-1", "M5")

	decision := guard.RequireRole(context.Background(), principal, "5", RoleAdmin, "op.write", CheckOptions{VerifyBeforeDeny: true})

	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if decision.Reason != ReasonInsufficientRole {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonInsufficientRole)
	}
	if store.calls != 0 {
		t.Errorf("store consulted %d times on an insufficient-role denial", store.calls)
	}
}

func TestGuardClaimsParseFailedGoesToFallback(t *testing.T) {
	store := &stubStore{role: RoleMember, found: true}
	guard := newTestGuard(store, nil, nil)
	principal := Principal{SubjectID: "user-1"} // token present, nothing decoded

	decision := guard.RequireRole(context.Background(), principal, "10", RoleMember, "op.read", CheckOptions{ClaimsParseFailed: true})

	if !decision.Allowed {
		t.Fatalf("expected fallback grant, got %s", decision.Reason)
	}
	if decision.Source != SourceFallback {
		t.Errorf("Source = %s, want %s", decision.Source, SourceFallback)
	}
	if store.calls != 1 {
		t.Errorf("store consulted %d times, want 1", store.calls)
	}
}

func TestGuardFallbackStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	guard := newTestGuard(store, nil, nil)
	principal := principalWith("user-1", "M5")

	decision := guard.RequireRole(context.Background(), principal, "99", RoleMember, "op.read", CheckOptions{VerifyBeforeDeny: true})

	if decision.Allowed {
		t.Fatal("expected denial on store error")
	}
	if decision.Reason != ReasonFallbackUnavailable {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonFallbackUnavailable)
	}
	if decision.HTTPStatus() != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want 403", decision.HTTPStatus())
	}
	if store.calls != 1 {
		t.Errorf("store consulted %d times, want exactly 1 (no retries)", store.calls)
	}
}

func TestGuardFallbackTimeout(t *testing.T) {
	guard := NewGuard(GuardConfig{
		Verifier: NewFallbackVerifier(blockingStore{}, 10*time.Millisecond),
	})
	principal := principalWith("user-1", "M5")

	start := time.Now()
	decision := guard.RequireRole(context.Background(), principal, "99", RoleMember, "op.read", CheckOptions{VerifyBeforeDeny: true})

	if decision.Allowed {
		t.Fatal("expected denial on store timeout")
	}
	if decision.Reason != ReasonFallbackUnavailable {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonFallbackUnavailable)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, bound not applied", elapsed)
	}
}

func TestGuardRateLimitOverridesGrant(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	guard := newTestGuard(nil, limiter, nil)
	principal := principalWith("user-1", "P10")

	decision := guard.RequireRole(context.Background(), principal, "10", RolePresident, "op.transfer", CheckOptions{RateLimited: true})

	if decision.Allowed {
		t.Fatal("limiter rejection must override the grant")
	}
	if decision.Reason != ReasonRateLimited {
		t.Errorf("Reason = %s, want %s", decision.Reason, ReasonRateLimited)
	}
	if decision.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want 429", decision.HTTPStatus())
	}
}

func TestGuardRateLimiterNotConsultedOnDenial(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	guard := newTestGuard(nil, limiter, nil)
	principal := principalWith("user-1", "M10")

	guard.RequireRole(context.Background(), principal, "10", RolePresident, "op.transfer", CheckOptions{RateLimited: true})

	if limiter.calls != 0 {
		t.Errorf("limiter consulted %d times on a denied request", limiter.calls)
	}
}

func TestGuardRateLimiterFailsOpen(t *testing.T) {
	limiter := &stubLimiter{allow: false, err: errors.New("redis down")}
	guard := newTestGuard(nil, limiter, nil)
	principal := principalWith("user-1", "P10")

	decision := guard.RequireRole(context.Background(), principal, "10", RolePresident, "op.transfer", CheckOptions{RateLimited: true})

	if !decision.Allowed {
		t.Errorf("limiter failure must not convert a grant into a denial, got %s", decision.Reason)
	}
}

func TestGuardRecordsEveryDecision(t *testing.T) {
	recorder := &recordingRecorder{}
	guard := newTestGuard(nil, nil, recorder)

	guard.RequireRole(context.Background(), principalWith("user-1", "A10"), "10", RoleAdmin, "op.write", CheckOptions{})
	guard.RequireRole(context.Background(), principalWith("user-2", "M10"), "10", RoleAdmin, "op.write", CheckOptions{})
	guard.RequireRole(context.Background(), AnonymousPrincipal(), "10", RoleMember, "op.read", CheckOptions{})

	if len(recorder.decisions) != 3 {
		t.Fatalf("recorded %d decisions, want 3", len(recorder.decisions))
	}
	if !recorder.decisions[0].Allowed || recorder.decisions[1].Allowed || recorder.decisions[2].Allowed {
		t.Errorf("recorded verdicts wrong: %+v", recorder.decisions)
	}
}

package authz

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/assembly-hq/assembly/pkg/observability"
)

// RateLimiter bounds how often a subject may invoke a sensitive operation.
// The guard depends only on this interface; in-memory and Redis-backed
// implementations live in pkg/ratelimit.
type RateLimiter interface {
	Allow(ctx context.Context, subjectID, operationKey string) (bool, error)
}

// DecisionRecorder observes every terminal decision. Implementations live
// in pkg/audit; recording must never influence the decision itself.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, req AccessRequest, decision AccessDecision)
	// RecordDiscrepancy is called when the slow path's verdict differs from
	// the fast path's: the token no longer reflects the membership store.
	RecordDiscrepancy(ctx context.Context, req AccessRequest, fast, slow AccessDecision)
}

// CheckOptions carries the per-operation policy flags resolved by the caller.
// Default behavior is always deny-on-uncertainty; routes opt in explicitly.
type CheckOptions struct {
	// AllowAnonymous admits anonymous principals. Honored only by
	// RequireRoleAllowAnonymous, never by RequireRole.
	AllowAnonymous bool
	// VerifyBeforeDeny consults the membership store when the fast path
	// says NotAMember (e.g. right after enrollment, when the token still
	// reflects pre-enrollment state).
	VerifyBeforeDeny bool
	// ClaimsParseFailed signals that a token was presented but no claim
	// entry decoded; the guard goes straight to the slow path.
	ClaimsParseFailed bool
	// RateLimited marks the operation as subject to the rate limiter.
	RateLimited bool
}

// GuardConfig wires the guard's collaborators. Any field may be nil; the
// corresponding behavior is disabled (no fallback, no rate limiting) or
// replaced with a no-op (recording, metrics).
type GuardConfig struct {
	Verifier *FallbackVerifier
	Limiter  RateLimiter
	Recorder DecisionRecorder
	Metrics  *observability.Metrics
	Logger   *observability.Logger
}

// Guard is the request-boundary authorization orchestrator: fast path over
// token claims, optional fallback against the membership store, rate
// limiting, and audit of every terminal decision.
type Guard struct {
	verifier *FallbackVerifier
	limiter  RateLimiter
	recorder DecisionRecorder
	metrics  *observability.Metrics
	logger   *observability.Logger
	tracer   trace.Tracer
}

// NewGuard creates a guard from the given configuration.
func NewGuard(cfg GuardConfig) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Guard{
		verifier: cfg.Verifier,
		limiter:  cfg.Limiter,
		recorder: recorder,
		metrics:  cfg.Metrics,
		logger:   logger,
		tracer:   otel.Tracer("assembly/authz"),
	}
}

// RequireRole authorizes an authenticated check: the principal must hold at
// least minimumRole at the organization. Anonymous principals are always
// denied by this entry point.
func (g *Guard) RequireRole(ctx context.Context, principal Principal, organizationID string, minimumRole Role, operation string, opts CheckOptions) AccessDecision {
	opts.AllowAnonymous = false
	return g.check(ctx, principal, organizationID, minimumRole, operation, opts)
}

// RequireRoleOrBypassForAnonymousLegacy is the explicit entry point for
// legacy unauthenticated routes. It short-circuits to an ANONYMOUS_BYPASS
// allow only when the route's policy declares anonymous access permitted;
// authenticated principals go through the normal decision procedure.
func (g *Guard) RequireRoleOrBypassForAnonymousLegacy(ctx context.Context, principal Principal, organizationID string, minimumRole Role, operation string, opts CheckOptions) AccessDecision {
	return g.check(ctx, principal, organizationID, minimumRole, operation, opts)
}

func (g *Guard) check(ctx context.Context, principal Principal, organizationID string, minimumRole Role, operation string, opts CheckOptions) AccessDecision {
	ctx, span := g.tracer.Start(ctx, "authz.check", trace.WithAttributes(
		attribute.String("authz.operation", operation),
		attribute.String("authz.organization_id", organizationID),
		attribute.String("authz.minimum_role", string(minimumRole)),
	))
	defer span.End()

	req := AccessRequest{
		Principal:      principal,
		OrganizationID: organizationID,
		MinimumRole:    minimumRole,
		Operation:      operation,
	}

	decision := g.decide(ctx, req, opts)

	// A limiter rejection overrides an otherwise-allowed decision. Anonymous
	// bypasses carry no subject to key the counter on and are exempt.
	if decision.Allowed && opts.RateLimited && g.limiter != nil && !principal.Anonymous {
		ok, err := g.limiter.Allow(ctx, principal.SubjectID, operation)
		if err != nil {
			// Fail open on limiter errors so a degraded counter store cannot
			// take authorization down with it.
			g.logger.WithError(err).WithField("operation", operation).Warn("rate limiter unavailable, allowing request")
		} else if !ok {
			decision = denied(ReasonRateLimited, decision.Source)
			if g.metrics != nil {
				g.metrics.RateLimitRejectionsTotal.WithLabelValues(operation).Inc()
			}
		}
	}

	span.SetAttributes(
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.reason", string(decision.Reason)),
		attribute.String("authz.source", string(decision.Source)),
	)

	if g.metrics != nil {
		g.metrics.AuthzDecisionsTotal.WithLabelValues(
			operation,
			strconv.FormatBool(decision.Allowed),
			string(decision.Reason),
			string(decision.Source),
		).Inc()
	}
	g.recorder.RecordDecision(ctx, req, decision)

	return decision
}

// decide runs the fast path and, when policy permits, the fallback path.
func (g *Guard) decide(ctx context.Context, req AccessRequest, opts CheckOptions) AccessDecision {
	if req.Principal.Anonymous {
		if opts.AllowAnonymous {
			return AccessDecision{
				Allowed:   true,
				Reason:    ReasonAnonymousBypass,
				Source:    SourceAnonymousBypass,
				CheckedAt: time.Now().UTC(),
			}
		}
		return denied(ReasonAnonymousDenied, SourceAnonymous)
	}

	var fast AccessDecision
	wantFallback := false
	if opts.ClaimsParseFailed {
		// Token present but unparseable; the fast path has nothing to say.
		fast = denied(ReasonNotAMember, SourceClaim)
		wantFallback = true
	} else {
		fast = Evaluate(req.Principal, req.OrganizationID, req.MinimumRole)
		if fast.Allowed {
			return fast
		}
		wantFallback = fast.Reason == ReasonNotAMember && opts.VerifyBeforeDeny
	}

	if !wantFallback || g.verifier == nil {
		return fast
	}
	return g.fallback(ctx, req, fast)
}

// fallback reconciles a fast-path denial against the membership store.
func (g *Guard) fallback(ctx context.Context, req AccessRequest, fast AccessDecision) AccessDecision {
	start := time.Now()
	claim, found, err := g.verifier.Verify(ctx, req.Principal.SubjectID, req.OrganizationID)
	if g.metrics != nil {
		g.metrics.FallbackDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		// Deny on uncertainty: a store timeout or error must surface once as
		// a denial, never hang the request and never be retried.
		if g.metrics != nil {
			g.metrics.FallbackLookupsTotal.WithLabelValues("error").Inc()
		}
		g.logger.WithError(err).WithFields(map[string]interface{}{
			"subject_id":      req.Principal.SubjectID,
			"organization_id": req.OrganizationID,
		}).Warn("fallback verification failed")
		return denied(ReasonFallbackUnavailable, SourceFallback)
	}

	if !found {
		if g.metrics != nil {
			g.metrics.FallbackLookupsTotal.WithLabelValues("miss").Inc()
		}
		return denied(ReasonNotAMember, SourceFallback)
	}

	if g.metrics != nil {
		g.metrics.FallbackLookupsTotal.WithLabelValues("hit").Inc()
	}

	slow := Evaluate(req.Principal.withClaim(claim), req.OrganizationID, req.MinimumRole)
	slow.Source = SourceFallback

	if slow.Allowed != fast.Allowed {
		// The token is stale relative to the membership store.
		g.recorder.RecordDiscrepancy(ctx, req, fast, slow)
	}
	return slow
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(context.Context, AccessRequest, AccessDecision) {}
func (nopRecorder) RecordDiscrepancy(context.Context, AccessRequest, AccessDecision, AccessDecision) {
}

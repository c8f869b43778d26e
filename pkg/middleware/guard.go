package middleware

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/assembly-hq/assembly/pkg/authz"
	"github.com/assembly-hq/assembly/pkg/policy"
)

// GuardMiddleware adapts the authorization guard to HTTP routes. Each
// protected route names an operation key; the key's policy supplies the
// minimum role, the route variable carrying the organization id, and the
// opt-in flags.
type GuardMiddleware struct {
	guard    *authz.Guard
	policies *policy.Set
}

// NewGuardMiddleware creates the guard middleware over a policy set.
func NewGuardMiddleware(guard *authz.Guard, policies *policy.Set) *GuardMiddleware {
	return &GuardMiddleware{guard: guard, policies: policies}
}

// RequireOperation returns middleware enforcing the named operation's policy.
func (m *GuardMiddleware) RequireOperation(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := m.policies.Lookup(operation)
			if !ok {
				// A route referencing an undeclared operation is a wiring
				// error; denying is the only safe answer.
				errorResponse(w, http.StatusForbidden, "operation not configured")
				return
			}

			orgID, ok := mux.Vars(r)[op.OrgParam]
			if !ok || orgID == "" {
				errorResponse(w, http.StatusBadRequest, "missing organization id")
				return
			}

			ctx := r.Context()
			principal := PrincipalFromContext(ctx)
			opts := op.CheckOptions()
			opts.ClaimsParseFailed = claimsParseFailed(ctx)

			var decision authz.AccessDecision
			if op.AllowAnonymous {
				decision = m.guard.RequireRoleOrBypassForAnonymousLegacy(ctx, principal, orgID, op.MinimumRole, operation, opts)
			} else {
				decision = m.guard.RequireRole(ctx, principal, orgID, op.MinimumRole, operation, opts)
			}

			if !decision.Allowed {
				writeDecision(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeDecision renders a denial as one of the four HTTP outcomes. Internal
// reason codes stay in the audit trail; the body carries only the outcome.
func writeDecision(w http.ResponseWriter, decision authz.AccessDecision) {
	status := decision.HTTPStatus()
	switch status {
	case http.StatusUnauthorized:
		errorResponse(w, status, "authentication required")
	case http.StatusTooManyRequests:
		errorResponse(w, status, "too many requests")
	default:
		errorResponse(w, status, "access denied")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

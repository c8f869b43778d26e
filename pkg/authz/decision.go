package authz

import (
	"net/http"
	"time"
)

// DecisionSource identifies which path produced an access decision.
type DecisionSource string

const (
	// SourceClaim means the decision was made purely from token claims (fast path).
	SourceClaim DecisionSource = "claim"
	// SourceFallback means the decision required a membership store lookup (slow path).
	SourceFallback DecisionSource = "fallback"
	// SourceAnonymous means the decision applied to an anonymous principal.
	SourceAnonymous DecisionSource = "anonymous"
	// SourceAnonymousBypass means an explicitly-flagged legacy route admitted
	// an anonymous principal. Only the anonymous-aware guard entry point may
	// produce this source.
	SourceAnonymousBypass DecisionSource = "anonymous_bypass"
)

// Reason classifies why a decision was allowed or denied. Reasons are for
// audit and logging; callers see only the HTTP outcome.
type Reason string

const (
	ReasonGranted             Reason = "granted"
	ReasonAnonymousBypass     Reason = "anonymous_bypass"
	ReasonAnonymousDenied     Reason = "anonymous_denied"
	ReasonNotAMember          Reason = "not_a_member"
	ReasonInsufficientRole    Reason = "insufficient_role"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonFallbackUnavailable Reason = "fallback_unavailable"
)

// AccessRequest describes a single authorization check. It is constructed
// by the guard per request and never persisted.
type AccessRequest struct {
	Principal      Principal
	OrganizationID string
	MinimumRole    Role
	Operation      string
}

// AccessDecision is the outcome of one authorization check. Decisions are
// produced fresh per request and never cached: claims can change between
// requests as memberships change.
type AccessDecision struct {
	Allowed     bool           `json:"allowed"`
	MatchedRole Role           `json:"matched_role,omitempty"`
	Reason      Reason         `json:"reason"`
	Source      DecisionSource `json:"source"`
	CheckedAt   time.Time      `json:"checked_at"`
}

// HTTPStatus maps the decision to the status code the transport layer renders.
func (d AccessDecision) HTTPStatus() int {
	if d.Allowed {
		return http.StatusOK
	}
	switch d.Reason {
	case ReasonAnonymousDenied:
		return http.StatusUnauthorized
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}

func allowed(role Role, source DecisionSource) AccessDecision {
	return AccessDecision{
		Allowed:     true,
		MatchedRole: role,
		Reason:      ReasonGranted,
		Source:      source,
		CheckedAt:   time.Now().UTC(),
	}
}

func denied(reason Reason, source DecisionSource) AccessDecision {
	return AccessDecision{
		Allowed:   false,
		Reason:    reason,
		Source:    source,
		CheckedAt: time.Now().UTC(),
	}
}

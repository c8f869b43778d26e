package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/assembly-hq/assembly/pkg/authz"
	"github.com/assembly-hq/assembly/pkg/contextkeys"
	"github.com/assembly-hq/assembly/pkg/observability"
)

// TokenVerifier validates a bearer token and extracts the subject and the
// raw membership claim list it carries. Token issuance and key management
// live with the identity provider, not here.
type TokenVerifier interface {
	Verify(token string) (subjectID string, rawClaims []string, err error)
}

// accessClaims is the JWT payload shape: standard registered claims plus
// the compact membership claim list.
type accessClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256-signed tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for HS256 tokens signed with secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and validates the token, returning its subject and raw
// membership claim entries.
func (v *JWTVerifier) Verify(tokenString string) (string, []string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || claims.Subject == "" {
		return "", nil, fmt.Errorf("invalid token claims")
	}
	return claims.Subject, claims.Roles, nil
}

// MalformedClaimObserver is notified when token entries fail to decode,
// so the skips are auditable.
type MalformedClaimObserver interface {
	RecordMalformedClaims(ctx context.Context, subjectID string, entries []string)
}

// AuthMiddleware builds the request's Principal. A missing or invalid
// bearer token yields an explicit anonymous principal: whether anonymous
// access is acceptable is a per-route policy decision made by the guard,
// never here.
type AuthMiddleware struct {
	verifier TokenVerifier
	observer MalformedClaimObserver
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(verifier TokenVerifier, observer MalformedClaimObserver, metrics *observability.Metrics, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuthMiddleware{
		verifier: verifier,
		observer: observer,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handler wraps an HTTP handler with principal construction.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, parseFailed := m.principalFromRequest(r)

		ctx := context.WithValue(r.Context(), contextkeys.PrincipalKey, principal)
		if parseFailed {
			ctx = context.WithValue(ctx, contextkeys.ClaimsParseFailedKey, true)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) principalFromRequest(r *http.Request) (authz.Principal, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return authz.AnonymousPrincipal(), false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return authz.AnonymousPrincipal(), false
	}

	subjectID, rawClaims, err := m.verifier.Verify(parts[1])
	if err != nil {
		m.logger.WithError(err).Debug("token verification failed, treating request as anonymous")
		return authz.AnonymousPrincipal(), false
	}

	principal, malformed := authz.NewPrincipal(subjectID, rawClaims)
	if len(malformed) > 0 {
		if m.metrics != nil {
			m.metrics.MalformedClaimsTotal.Add(float64(len(malformed)))
		}
		if m.observer != nil {
			m.observer.RecordMalformedClaims(r.Context(), subjectID, malformed)
		}
	}

	// The token parsed but none of its claim entries did; the guard routes
	// this straight to the membership store instead of denying blind.
	parseFailed := len(rawClaims) > 0 && len(principal.Claims) == 0
	return principal, parseFailed
}

// PrincipalFromContext extracts the request's principal. Requests that did
// not pass through AuthMiddleware are anonymous.
func PrincipalFromContext(ctx context.Context) authz.Principal {
	if principal, ok := ctx.Value(contextkeys.PrincipalKey).(authz.Principal); ok {
		return principal
	}
	return authz.AnonymousPrincipal()
}

// claimsParseFailed reports whether the request carried a token whose claim
// entries all failed to decode.
func claimsParseFailed(ctx context.Context) bool {
	failed, ok := ctx.Value(contextkeys.ClaimsParseFailedKey).(bool)
	return ok && failed
}

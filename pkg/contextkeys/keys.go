// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains authz.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: guard middleware, handlers
	PrincipalKey Key = "principal"

	// ClaimsParseFailedKey contains bool: a token was presented but no
	// claim entry decoded.
	// Set by: middleware.AuthMiddleware
	// Required by: guard middleware (routes the check to the slow path)
	ClaimsParseFailedKey Key = "claims_parse_failed"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

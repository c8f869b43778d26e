// Package middleware provides HTTP middleware for authentication,
// authorization, and request identification.
//
// # Overview
//
// This package turns incoming requests into authz principals and enforces
// per-operation access policies before handlers run.
//
// # Middleware Components
//
// RequestIDMiddleware: request correlation
//
//	router.Use(middleware.RequestIDMiddleware)
//	// Adopts or generates X-Request-ID, threads it through the context
//
// AuthMiddleware: bearer token to principal
//
//	authMW := middleware.NewAuthMiddleware(verifier, recorder, metrics, logger)
//	router.Use(authMW.Handler)
//	// Missing or invalid tokens yield an explicit anonymous principal
//
// GuardMiddleware: per-operation policy enforcement
//
//	guardMW := middleware.NewGuardMiddleware(guard, policies)
//	router.Handle("/orgs/{org_id}/members",
//		guardMW.RequireOperation("org.members.add")(handler)).Methods("POST")
//
// # Status Mapping
//
// Denials map to exactly four HTTP outcomes: 401 for anonymous denials,
// 429 for rate limiting, 403 for everything else, 400 for a missing
// organization id. Internal reason codes stay in the audit trail.
//
// # Related Packages
//
//   - pkg/authz: decision engine
//   - pkg/policy: per-operation policy configuration
//   - pkg/audit: malformed claim and decision recording
package middleware

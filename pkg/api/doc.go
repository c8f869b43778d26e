// Package api provides the HTTP handlers for organization membership
// management: listing, enrolling, re-ranking and removing members, the
// rate-limited ownership transfer, and the public organization summary.
// All routes are registered behind the guard middleware; handlers assume
// authorization has already happened.
package api

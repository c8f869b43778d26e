// Package audit records every authorization decision with enough context to
// reconstruct it later. Sinks are pluggable: PostgreSQL for durable storage,
// a structured application-log sink, and a fan-out over several sinks.
package audit

import (
	"context"
)

// Logger is the interface for audit sinks.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *Event) error

	// Close closes the sink and flushes any buffered events.
	Close() error
}

// NopLogger is a sink that discards everything (used when auditing is
// not configured).
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }

package audit

import (
	"context"
	"fmt"
	"strings"
)

// MultiLogger fans audit events out to several sinks. Every sink sees every
// event; errors are collected so one failing sink cannot hide the others.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a fan-out sink over the given sinks.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// Log delivers the event to every sink.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []string
	for _, sink := range m.sinks {
		if err := sink.Log(ctx, event); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("audit sink errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Close closes every sink.
func (m *MultiLogger) Close() error {
	var errs []string
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("audit sink close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Package observability provides structured logging and Prometheus metrics
// shared across the service.
package observability

// Package observability exposes Prometheus metrics and OpenTelemetry tracing
// for the ingestion daemon.
package observability

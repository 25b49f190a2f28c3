// Package observability exposes scheduler metrics to Prometheus and wires
// OpenTelemetry tracing for tick spans.
package observability

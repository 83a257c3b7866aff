// Package observability provides structured logging, Prometheus metrics,
// health probes, and graceful shutdown for the tracklane server.
//
// Logging uses slog with a JSON handler. Metrics follow the tracklane_*
// naming scheme and are registered against an explicit registry so tests can
// use their own. Health endpoints separate liveness (process up) from
// readiness (dependencies reachable); Redis is optional and only degrades
// readiness, PostgreSQL failures make the server unready.
package observability

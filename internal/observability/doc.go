// Package observability groups the logging, metrics and tracing helpers shared
// by the API and the worker.
//
// Subpackages:
//   - logging: slog construction and request-scoped loggers
//   - metrics: process-level collectors (database pool, build info)
//   - tracing: OpenTelemetry spans for HTTP requests and delivery use cases
//
// Delivery metrics live next to the code that records them (usecase/notify,
// infra/notifier, infra/worker).
package observability

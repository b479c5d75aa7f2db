// Package tracing provides OpenTelemetry tracing integration.
//
// HTTP requests are traced by Middleware; the delivery use cases open internal
// spans with StartSpan around orchestration, pending sweeps and digest builds.
// InitProvider installs the global provider and W3C propagators; exporters are
// passed in by the process.
//
//	ctx, span := tracing.StartSpan(ctx, "notify.Deliver", attribute.String("user_id", id))
//	defer func() { tracing.EndSpan(span, err) }()
package tracing

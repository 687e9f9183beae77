/*
Package tracing provides lightweight request tracing for debugging
production issues.

# Overview

This package implements minimal tracing to follow a request through the
HTTP surface and into the subsystem operations it triggers. It follows
OpenTelemetry concepts without pulling in a full SDK.

# Features

- Trace context propagation via HTTP headers
- Span creation with parent-child relationships
- Automatic trace ID generation (ULID-backed)
- Gin middleware for automatic instrumentation
- Structured logging integration
- Buffered, non-blocking span collection

# Usage

	tracer := tracing.New("backend", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	span.SetTag("key", "value")

# Trace Format

Traces use standard HTTP headers for propagation:
- X-Trace-ID: unique identifier for the request flow
- X-Span-ID: identifier for the current operation
*/
package tracing

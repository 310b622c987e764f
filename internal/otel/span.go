// Package otel provides small OpenTelemetry helpers shared across the
// application.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Shared attribute keys so spans across packages name things the same way.
const (
	AttrSynchronizationID = attribute.Key("synchronization.id")
	AttrSourceType        = attribute.Key("source.type")
	AttrTargetType        = attribute.Key("target.type")
	AttrRunTest           = attribute.Key("run.test")
	AttrRunForce          = attribute.Key("run.force")
	AttrResultCount       = attribute.Key("result.count")
)

// StartSpan starts a span when the tracer is non-nil, otherwise returns
// the span already on the context. Callers never need to branch on
// tracing being disabled.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and marks it failed. The status
// description stays generic so connection strings and queries never end up
// in trace status.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

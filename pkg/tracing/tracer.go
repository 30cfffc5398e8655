// Package tracing provides the shared OTel tracer helper for domain packages.
//
// When no TracerProvider is registered (tests, local dev without a collector)
// the global no-op provider is used and every call is inert.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "thingbooker"

// Start creates a span as a child of the span in ctx, or a root span when ctx
// carries none. The caller must end it, usually through Finish.
//
//	ctx, span := tracing.Start(ctx, "bookings.accept",
//	    attribute.String("thingbooker.thing.id", thing.ID),
//	)
//	defer func() { tracing.Finish(span, err) }()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Finish records err on span, sets its status and ends it.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

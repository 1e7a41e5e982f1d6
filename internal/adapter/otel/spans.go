package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "synod"

// StartConveneSpan starts a span covering one convene call.
func StartConveneSpan(ctx context.Context, decisionType, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "convene",
		trace.WithAttributes(
			attribute.String("decision.type", decisionType),
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartAdvisorSpan starts a span for a single advisor's analysis.
func StartAdvisorSpan(ctx context.Context, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "advisor.analyse",
		trace.WithAttributes(
			attribute.String("advisor.kind", kind),
		),
	)
}

// StartFunnelSpan starts a span for recording one funnel event.
func StartFunnelSpan(ctx context.Context, stage, action string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "funnel.track",
		trace.WithAttributes(
			attribute.String("funnel.stage", stage),
			attribute.String("funnel.action", action),
		),
	)
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanPlaceOrder  = "place_order"
	SpanTakeOrder   = "take_order"
	SpanCancelOrder = "cancel_order"
	SpanPublish     = "publish_event"

	// Attribute keys
	AttributeMarket     = "market.id"
	AttributeOutcome    = "market.outcome"
	AttributeSide       = "order.side"
	AttributeTick       = "order.tick"
	AttributeShares     = "order.shares"
	AttributeOrderID    = "order.id"
	AttributeTradeCount = "trade.count"
)

// StartEngineSpan starts a span for one engine operation. Without an
// initialized tracer the returned span is the context's non-recording
// span, so callers never need a nil check.
func StartEngineSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetEngineTracer()
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SpanFromContext returns the current span of the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

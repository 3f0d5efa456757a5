package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// engineMetrics holds the singleton instance
	engineMetrics *EngineMetrics
	// meter is the global meter for engine metrics
	meter = otel.GetMeterProvider().Meter(instrumentationName)
)

// EngineMetrics holds metrics for trading engine operations
type EngineMetrics struct {
	// Fills produced per operation kind (limit, take)
	fillsTotal metric.Int64Counter
	// Cancelled orders
	cancelsTotal metric.Int64Counter
}

// GetEngineMetrics returns the EngineMetrics singleton
func GetEngineMetrics() *EngineMetrics {
	if engineMetrics == nil {
		fillsTotal, err := meter.Int64Counter(
			"engine.fills.total",
			metric.WithDescription("Total number of fills produced"),
			metric.WithUnit("{fill}"),
		)
		if err != nil {
			return &EngineMetrics{}
		}

		cancelsTotal, err := meter.Int64Counter(
			"engine.cancels.total",
			metric.WithDescription("Total number of orders cancelled"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			return &EngineMetrics{}
		}

		engineMetrics = &EngineMetrics{
			fillsTotal:   fillsTotal,
			cancelsTotal: cancelsTotal,
		}
	}

	return engineMetrics
}

// RecordFills increments the fills counter for one operation kind
func (m *EngineMetrics) RecordFills(ctx context.Context, kind string, count int64) {
	if m.fillsTotal == nil || count == 0 {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation.kind", kind),
	}
	m.fillsTotal.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordCancel increments the cancelled orders counter
func (m *EngineMetrics) RecordCancel(ctx context.Context) {
	if m.cancelsTotal == nil {
		return
	}
	m.cancelsTotal.Add(ctx, 1)
}

package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	sequencerMetrics     *SequencerMetrics
	sequencerMetricsOnce sync.Once
	metricsLock          sync.RWMutex
)

// SequencerMetrics holds the metrics instruments for the command
// sequencer, the single serialization point all trading operations pass
// through.
type SequencerMetrics struct {
	// Latency metrics
	commandLatency metric.Float64Histogram

	// Traffic metrics
	commandsTotal metric.Int64Counter
	queueDepth    metric.Int64UpDownCounter

	// Error metrics
	errorTotal metric.Int64Counter
}

// NewSequencerMetrics creates a new SequencerMetrics instance
func NewSequencerMetrics(meter metric.Meter) (*SequencerMetrics, error) {
	commandLatency, err := meter.Float64Histogram(
		"sequencer.command.duration",
		metric.WithDescription("Time (seconds) one command spends executing in the sequencer"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	commandsTotal, err := meter.Int64Counter(
		"sequencer.commands.total",
		metric.WithDescription("Total number of commands applied"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64UpDownCounter(
		"sequencer.queue.depth",
		metric.WithDescription("Number of commands waiting in the sequencer queue"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	errorTotal, err := meter.Int64Counter(
		"sequencer.errors.total",
		metric.WithDescription("Total number of commands rejected with an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &SequencerMetrics{
		commandLatency: commandLatency,
		commandsTotal:  commandsTotal,
		queueDepth:     queueDepth,
		errorTotal:     errorTotal,
	}, nil
}

// GetSequencerMetrics returns a singleton instance of SequencerMetrics
func GetSequencerMetrics(meter metric.Meter) (*SequencerMetrics, error) {
	var err error
	sequencerMetricsOnce.Do(func() {
		sequencerMetrics, err = NewSequencerMetrics(meter)
	})
	if err != nil {
		return nil, err
	}
	return sequencerMetrics, nil
}

// RecordLatency records how long one command took to apply
func (m *SequencerMetrics) RecordLatency(ctx context.Context, op string, duration time.Duration) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("command.op", op),
	}
	m.commandLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	return nil
}

// IncCommands increments the applied commands counter
func (m *SequencerMetrics) IncCommands(ctx context.Context, op string) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("command.op", op),
	}
	m.commandsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	return nil
}

// AddQueueDepth adds to the queued commands counter
func (m *SequencerMetrics) AddQueueDepth(ctx context.Context, delta int64) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	m.queueDepth.Add(ctx, delta)
	return nil
}

// IncErrors increments the error counter
func (m *SequencerMetrics) IncErrors(ctx context.Context, op string) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("command.op", op),
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	return nil
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openclob/pointsbook/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ExecutionConsumer reads execution messages from a Kafka topic.
type ExecutionConsumer struct {
	reader *kafka.Reader
}

// NewExecutionConsumer creates a consumer joining the given group.
func NewExecutionConsumer(brokerAddr, topic, groupID string) *ExecutionConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{brokerAddr},
		Topic:   topic,
		GroupID: groupID,
	})
	return &ExecutionConsumer{reader: reader}
}

// Consume blocks reading executions and invoking handle for each until
// the context is cancelled or the reader fails.
func (c *ExecutionConsumer) Consume(ctx context.Context, handle func(*messaging.ExecutionMessage) error) error {
	for {
		raw, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		var msg messaging.ExecutionMessage
		if err := json.Unmarshal(raw.Value, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal execution message: %w", err)
		}
		if err := handle(&msg); err != nil {
			return err
		}
	}
}

// Close closes the underlying reader.
func (c *ExecutionConsumer) Close() error {
	return c.reader.Close()
}

// SetupConsumer starts a background consumer that logs every execution.
// A broker that is down is tolerated: the error is logged and the server
// continues without Kafka support.
func SetupConsumer(ctx context.Context, brokerAddr, topic, groupID string, logger zerolog.Logger) *ExecutionConsumer {
	consumer := NewExecutionConsumer(brokerAddr, topic, groupID)

	go func() {
		logger.Info().Str("topic", topic).Msg("Starting Kafka consumer")
		err := consumer.Consume(ctx, func(msg *messaging.ExecutionMessage) error {
			logger.Info().
				Str("event_id", msg.EventID).
				Uint32("market", msg.Market).
				Uint16("outcome", msg.Outcome).
				Str("side", msg.Side).
				Uint64("order_id", msg.OrderID).
				Str("filled", msg.Filled).
				Str("remaining", msg.Remaining).
				Str("points", msg.Points).
				Bool("rested", msg.Rested).
				Int("trades", len(msg.Trades)).
				Msg("Received execution message")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return consumer
}

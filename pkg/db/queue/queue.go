package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/openclob/pointsbook/pkg/messaging"
)

var (
	brokerList = []string{"localhost:9092"}
	topic      = "pointsbook-events"
	maxRetry   = 5
)

// newSyncProducer is swapped out in tests.
var newSyncProducer = sarama.NewSyncProducer

// SetBrokerList overrides the Kafka broker list before senders are built.
func SetBrokerList(brokers []string) {
	brokerList = brokers
}

// SetTopic overrides the Kafka topic before senders are built.
func SetTopic(t string) {
	topic = t
}

// QueueMessageSender implements the MessageSender interface over a
// long-lived sarama sync producer.
type QueueMessageSender struct {
	producer sarama.SyncProducer
}

// NewQueueMessageSender connects a producer to the configured brokers.
func NewQueueMessageSender() (*QueueMessageSender, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = maxRetry
	config.Producer.Return.Successes = true

	producer, err := newSyncProducer(brokerList, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &QueueMessageSender{producer: producer}, nil
}

// SendExecution sends an execution message to the Kafka queue, keyed by
// market id so per-market ordering is preserved.
func (q *QueueMessageSender) SendExecution(_ context.Context, msg *messaging.ExecutionMessage) error {
	return q.send(fmt.Sprintf("%d", msg.Market), msg)
}

// SendMarketEvent sends a market lifecycle event to the Kafka queue.
func (q *QueueMessageSender) SendMarketEvent(_ context.Context, msg *messaging.MarketEventMessage) error {
	return q.send(fmt.Sprintf("%d", msg.Market), msg)
}

func (q *QueueMessageSender) send(key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	if _, _, err := q.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close shuts down the underlying producer.
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

// Ensure QueueMessageSender implements MessageSender
var _ messaging.MessageSender = (*QueueMessageSender)(nil)

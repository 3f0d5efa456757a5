package queue

import (
	"github.com/IBM/sarama"
)

// mockProducer is an in-memory sarama.SyncProducer used by the queue
// tests to capture published messages. Transactional methods are no-ops.
type mockProducer struct {
	sentMessages []*sarama.ProducerMessage
}

var _ sarama.SyncProducer = (*mockProducer)(nil)

func (m *mockProducer) SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error) {
	m.sentMessages = append(m.sentMessages, msg)
	return 0, int64(len(m.sentMessages)) - 1, nil
}

func (m *mockProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	m.sentMessages = append(m.sentMessages, msgs...)
	return nil
}

func (m *mockProducer) Close() error { return nil }

func (m *mockProducer) TxnStatus() sarama.ProducerTxnStatusFlag { return 0 }

func (m *mockProducer) IsTransactional() bool { return false }

func (m *mockProducer) BeginTxn() error { return nil }

func (m *mockProducer) CommitTxn() error { return nil }

func (m *mockProducer) AbortTxn() error { return nil }

func (m *mockProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (m *mockProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

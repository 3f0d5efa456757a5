package messaging

import (
	"context"
	"sync"
)

// MockMessageSender records sent messages in memory for testing.
type MockMessageSender struct {
	mu           sync.Mutex
	executions   []*ExecutionMessage
	marketEvents []*MarketEventMessage
}

// NewMockMessageSender creates a new MockMessageSender.
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// SendExecution records the execution message.
func (m *MockMessageSender) SendExecution(_ context.Context, msg *ExecutionMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, msg)
	return nil
}

// SendMarketEvent records the market event message.
func (m *MockMessageSender) SendMarketEvent(_ context.Context, msg *MarketEventMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketEvents = append(m.marketEvents, msg)
	return nil
}

// Executions returns the recorded execution messages.
func (m *MockMessageSender) Executions() []*ExecutionMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ExecutionMessage(nil), m.executions...)
}

// MarketEvents returns the recorded market event messages.
func (m *MockMessageSender) MarketEvents() []*MarketEventMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MarketEventMessage(nil), m.marketEvents...)
}

// Close does nothing.
func (m *MockMessageSender) Close() error {
	return nil
}

// Ensure MockMessageSender implements MessageSender
var _ MessageSender = (*MockMessageSender)(nil)

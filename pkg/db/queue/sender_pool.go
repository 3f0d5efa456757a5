package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/openclob/pointsbook/pkg/messaging"
)

var (
	senderPool   chan messaging.MessageSender
	poolInitOnce sync.Once
	maxPoolSize  = 32 // Pool size optimized for 100k msgs/sec
)

// initSenderPool initializes the sender pool
func initSenderPool() {
	poolInitOnce.Do(func() {
		senderPool = make(chan messaging.MessageSender, maxPoolSize)
		// Pre-populate the entire pool
		for i := 0; i < maxPoolSize; i++ {
			sender, err := NewQueueMessageSender()
			if err != nil {
				fmt.Printf("Error creating sender: %v\n", err)
				continue
			}
			if sender != nil {
				senderPool <- sender
			}
		}
	})
}

// GetSender gets a sender from the pool
func GetSender() messaging.MessageSender {
	initSenderPool()

	// Simple non-blocking get from pool
	select {
	case sender := <-senderPool:
		return sender
	default:
		// If pool is empty, something is wrong - log and return nil
		fmt.Printf("Warning: sender pool is empty\n")
		return nil
	}
}

// ReturnSender returns a sender to the pool
func ReturnSender(sender messaging.MessageSender) {
	if sender == nil {
		return
	}

	// Simple non-blocking return to pool
	select {
	case senderPool <- sender:
		// Successfully returned to pool
	default:
		// If pool is full, something is wrong - log and close
		fmt.Printf("Warning: sender pool is full\n")
		_ = sender.Close()
	}
}

// PooledSender adapts the pool to the MessageSender interface so the
// engine can publish through whichever producer is free.
type PooledSender struct{}

// NewPooledSender returns a sender backed by the shared producer pool.
func NewPooledSender() *PooledSender {
	return &PooledSender{}
}

// SendExecution sends an execution message using a pooled sender.
func (p *PooledSender) SendExecution(ctx context.Context, msg *messaging.ExecutionMessage) error {
	return withPooledSender(func(s messaging.MessageSender) error {
		return s.SendExecution(ctx, msg)
	})
}

// SendMarketEvent sends a market event using a pooled sender.
func (p *PooledSender) SendMarketEvent(ctx context.Context, msg *messaging.MarketEventMessage) error {
	return withPooledSender(func(s messaging.MessageSender) error {
		return s.SendMarketEvent(ctx, msg)
	})
}

// Close drains and closes every pooled sender.
func (p *PooledSender) Close() error {
	for {
		select {
		case sender := <-senderPool:
			_ = sender.Close()
		default:
			return nil
		}
	}
}

func withPooledSender(send func(messaging.MessageSender) error) error {
	sender := GetSender()
	if sender == nil {
		return fmt.Errorf("failed to get message sender from pool")
	}

	if err := send(sender); err != nil {
		// If we get a connection error, don't return this sender to the pool
		_ = sender.Close()
		return err
	}
	ReturnSender(sender)
	return nil
}

// Ensure PooledSender implements MessageSender
var _ messaging.MessageSender = (*PooledSender)(nil)

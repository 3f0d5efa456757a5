package memory

import (
	"testing"

	"github.com/openclob/pointsbook/pkg/core"
)

func BenchmarkMemoryBackend_PutOrder(b *testing.B) {
	backend := NewMemoryBackend()
	book := core.BookKey{Class: core.ClassKey{Market: 1}, Side: core.Bid}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := core.OrderID(i + 1)
		order := &core.Order{ID: id, Owner: 7, Tick: 50, Remaining: 100, Original: 100}
		backend.PutOrder(core.OrderKey{Book: book, ID: id}, order)
	}
}

func BenchmarkMemoryBackend_GetOrder(b *testing.B) {
	backend := NewMemoryBackend()
	book := core.BookKey{Class: core.ClassKey{Market: 1}, Side: core.Bid}

	numOrders := 1000
	for i := 0; i < numOrders; i++ {
		id := core.OrderID(i + 1)
		order := &core.Order{ID: id, Owner: 7, Tick: 50, Remaining: 100, Original: 100}
		backend.PutOrder(core.OrderKey{Book: book, ID: id}, order)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := core.OrderID(i%numOrders + 1)
		_ = backend.Order(core.OrderKey{Book: book, ID: id})
	}
}

func BenchmarkMemoryBackend_PutLevel(b *testing.B) {
	backend := NewMemoryBackend()
	book := core.BookKey{Class: core.ClassKey{Market: 1}, Side: core.Ask}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tick := core.Tick(i%99 + 1)
		level := core.Level{Head: core.OrderID(i + 1), Tail: core.OrderID(i + 1), Total: 100}
		backend.PutLevel(core.LevelKey{Book: book, Tick: tick}, level)
	}
}

package memory

import (
	"testing"

	"github.com/openclob/pointsbook/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClass() core.ClassKey {
	return core.ClassKey{Market: 1, Outcome: 0}
}

func TestNewMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	assert.NotNil(t, backend)
	assert.NotNil(t, backend.markets)
	assert.NotNil(t, backend.books)
	assert.NotNil(t, backend.levels)
	assert.NotNil(t, backend.orders)
	assert.NotNil(t, backend.points)
	assert.NotNil(t, backend.shares)
}

func TestMemoryBackend_MetaRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()

	assert.Equal(t, core.EngineMeta{}, backend.Meta())

	backend.PutMeta(core.EngineMeta{NextMarketID: 3, Dust: 17})
	meta := backend.Meta()
	assert.Equal(t, core.MarketID(3), meta.NextMarketID)
	assert.Equal(t, uint64(17), meta.Dust)
}

func TestMemoryBackend_MarketOperations(t *testing.T) {
	backend := NewMemoryBackend()

	assert.Nil(t, backend.Market(1))

	market := &core.Market{ID: 1, Creator: 7, Resolver: 8, Outcomes: 2, TakerFeeBps: 100}
	backend.PutMarket(market)

	stored := backend.Market(1)
	require.NotNil(t, stored)
	assert.Equal(t, *market, *stored)

	// The stored record must not alias the caller's struct.
	market.FeePool = 999
	assert.Equal(t, uint64(0), backend.Market(1).FeePool)
}

func TestMemoryBackend_OrderOperations(t *testing.T) {
	backend := NewMemoryBackend()
	key := core.OrderKey{
		Book: core.BookKey{Class: testClass(), Side: core.Bid},
		ID:   42,
	}

	assert.Nil(t, backend.Order(key))

	order := &core.Order{ID: 42, Owner: 7, Tick: 50, Remaining: 100, Original: 100, Locked: 51}
	backend.PutOrder(key, order)

	stored := backend.Order(key)
	require.NotNil(t, stored)
	assert.Equal(t, *order, *stored)

	// Mutating the returned copy must not touch the stored record.
	stored.Remaining = 0
	assert.Equal(t, uint64(100), backend.Order(key).Remaining)
}

func TestMemoryBackend_LevelDeletedWhenEmptied(t *testing.T) {
	backend := NewMemoryBackend()
	key := core.LevelKey{
		Book: core.BookKey{Class: testClass(), Side: core.Ask},
		Tick: 50,
	}

	backend.PutLevel(key, core.Level{Head: 1, Tail: 1, Total: 10})
	assert.Equal(t, uint64(10), backend.Level(key).Total)

	backend.PutLevel(key, core.Level{})
	assert.Equal(t, core.Level{}, backend.Level(key))
	assert.Empty(t, backend.levels)
}

func TestMemoryBackend_BookRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	class := testClass()

	book := backend.Book(class)
	assert.Equal(t, core.OrderID(0), book.NextOrderID)

	book.NextOrderID = 5
	book.Masks[core.Ask] = book.Masks[core.Ask].Set(50)
	backend.PutBook(class, book)

	stored := backend.Book(class)
	assert.Equal(t, core.OrderID(5), stored.NextOrderID)
	assert.True(t, stored.Masks[core.Ask].Has(50))
}

func TestMemoryBackend_Balances(t *testing.T) {
	backend := NewMemoryBackend()
	class := testClass()

	assert.Equal(t, core.Balance{}, backend.Points(1))
	assert.Equal(t, core.Balance{}, backend.Shares(1, class))

	backend.PutPoints(1, core.Balance{Free: 100, Reserved: 50})
	backend.PutShares(1, class, core.Balance{Free: 10})

	assert.Equal(t, uint64(150), backend.Points(1).Total())
	assert.Equal(t, uint64(10), backend.Shares(1, class).Free)

	// Share balances of different classes are independent.
	other := core.ClassKey{Market: 1, Outcome: 1}
	assert.Equal(t, core.Balance{}, backend.Shares(1, other))
}

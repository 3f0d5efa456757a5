package memory

import (
	"sync"

	"github.com/openclob/pointsbook/pkg/core"
)

type shareKey struct {
	user  core.UserID
	class core.ClassKey
}

// MemoryBackend implements the core.Store interface with in-memory maps.
// Records are copied on the way in and out so callers can never alias
// stored state. The RWMutex only guards against concurrent readers (feed
// snapshots); all writes come from the single sequencer goroutine.
type MemoryBackend struct {
	sync.RWMutex
	meta    core.EngineMeta
	markets map[core.MarketID]core.Market
	books   map[core.ClassKey]core.BookState
	levels  map[core.LevelKey]core.Level
	orders  map[core.OrderKey]core.Order
	points  map[core.UserID]core.Balance
	shares  map[shareKey]core.Balance
}

// NewMemoryBackend creates new instance of MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		markets: make(map[core.MarketID]core.Market),
		books:   make(map[core.ClassKey]core.BookState),
		levels:  make(map[core.LevelKey]core.Level),
		orders:  make(map[core.OrderKey]core.Order),
		points:  make(map[core.UserID]core.Balance),
		shares:  make(map[shareKey]core.Balance),
	}
}

// Meta returns the engine-wide counters.
func (b *MemoryBackend) Meta() core.EngineMeta {
	b.RLock()
	defer b.RUnlock()
	return b.meta
}

// PutMeta stores the engine-wide counters.
func (b *MemoryBackend) PutMeta(meta core.EngineMeta) {
	b.Lock()
	defer b.Unlock()
	b.meta = meta
}

// Market retrieves a market record by id, nil when absent.
func (b *MemoryBackend) Market(id core.MarketID) *core.Market {
	b.RLock()
	defer b.RUnlock()
	m, ok := b.markets[id]
	if !ok {
		return nil
	}
	return &m
}

// PutMarket stores a market record.
func (b *MemoryBackend) PutMarket(m *core.Market) {
	b.Lock()
	defer b.Unlock()
	b.markets[m.ID] = *m
}

// Book retrieves the per-book aggregate, zero value when absent.
func (b *MemoryBackend) Book(class core.ClassKey) core.BookState {
	b.RLock()
	defer b.RUnlock()
	return b.books[class]
}

// PutBook stores the per-book aggregate.
func (b *MemoryBackend) PutBook(class core.ClassKey, book core.BookState) {
	b.Lock()
	defer b.Unlock()
	b.books[class] = book
}

// Level retrieves a price level record, zero value when absent.
func (b *MemoryBackend) Level(key core.LevelKey) core.Level {
	b.RLock()
	defer b.RUnlock()
	return b.levels[key]
}

// PutLevel stores a price level record. An emptied level is dropped from
// the map; reading it back yields the zero value, which is equivalent.
func (b *MemoryBackend) PutLevel(key core.LevelKey, level core.Level) {
	b.Lock()
	defer b.Unlock()
	if level.Total == 0 && level.Head == 0 {
		delete(b.levels, key)
		return
	}
	b.levels[key] = level
}

// Order retrieves an order record by key, nil when absent.
func (b *MemoryBackend) Order(key core.OrderKey) *core.Order {
	b.RLock()
	defer b.RUnlock()
	o, ok := b.orders[key]
	if !ok {
		return nil
	}
	return &o
}

// PutOrder stores an order record. Closed orders stay readable.
func (b *MemoryBackend) PutOrder(key core.OrderKey, order *core.Order) {
	b.Lock()
	defer b.Unlock()
	b.orders[key] = *order
}

// Points retrieves a user's Points balance, zero value when absent.
func (b *MemoryBackend) Points(user core.UserID) core.Balance {
	b.RLock()
	defer b.RUnlock()
	return b.points[user]
}

// PutPoints stores a user's Points balance.
func (b *MemoryBackend) PutPoints(user core.UserID, bal core.Balance) {
	b.Lock()
	defer b.Unlock()
	b.points[user] = bal
}

// Shares retrieves a user's balance of one share class.
func (b *MemoryBackend) Shares(user core.UserID, class core.ClassKey) core.Balance {
	b.RLock()
	defer b.RUnlock()
	return b.shares[shareKey{user: user, class: class}]
}

// PutShares stores a user's balance of one share class.
func (b *MemoryBackend) PutShares(user core.UserID, class core.ClassKey, bal core.Balance) {
	b.Lock()
	defer b.Unlock()
	b.shares[shareKey{user: user, class: class}] = bal
}

// Ensure MemoryBackend implements Store
var _ core.Store = (*MemoryBackend)(nil)

package core

// Order is one resting limit order record. Orders form a FIFO chain per
// level through Next, addressed by OrderID rather than pointers so the
// structure stays flat and serializable. Side is never stored here; it is
// always implied by the BookKey the order is stored under.
type Order struct {
	ID    OrderID
	Owner UserID
	Tick  Tick
	// Remaining decreases monotonically with every fill; zero means the
	// order is logically deleted (filled or cancelled). The record itself
	// is kept for auditing since ids are never reused.
	Remaining uint64
	// Original is the requested size at placement, immutable.
	Original uint64
	// Locked is the exact reservation still backing the remainder:
	// Points for a bid, shares for an ask. Cancellation releases this
	// amount, never a recomputed estimate.
	Locked uint64
	// Next is the successor in the level FIFO; zero means none.
	Next OrderID
}

// Open reports whether the order is still live on the book.
func (o *Order) Open() bool {
	return o != nil && o.Remaining > 0
}

// Level is the aggregate state of all orders resting at one (book, tick).
// An absent record reads as the zero value and means an empty level; the
// book's mask bit must be set exactly when Total > 0.
type Level struct {
	Head  OrderID
	Tail  OrderID
	Total uint64
}

// Empty reports whether no order rests at the level.
func (l *Level) Empty() bool {
	return l == nil || l.Total == 0
}

// BookState is the per-class aggregate: the order id allocator and one
// price mask per side.
type BookState struct {
	NextOrderID OrderID
	Masks       [2]Mask // indexed by Side
}

// EngineMeta is process-wide engine state: the market id allocator and
// the protocol dust pool.
type EngineMeta struct {
	NextMarketID MarketID
	Dust         uint64
}

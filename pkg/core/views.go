package core

// Read-only surfaces. None of these mutate state; all operate on the
// same snapshot the single writer last committed.

// BestTick returns the best price of one book side: the lowest resting
// ask or the highest resting bid. ok is false when the side is empty.
func (e *Engine) BestTick(class ClassKey, side Side) (Tick, bool) {
	book := e.store.Book(class)
	return book.Masks[side].Best(side)
}

// LevelAt returns a snapshot of the level at the given tick.
func (e *Engine) LevelAt(class ClassKey, side Side, tick Tick) LevelView {
	level := e.store.Level(LevelKey{Book: BookKey{Class: class, Side: side}, Tick: tick})
	return LevelView{Tick: tick, Head: level.Head, Tail: level.Tail, Total: level.Total}
}

// OrderByID returns a copy of the full order record, or nil when no such
// order was ever placed on this book. Filled and cancelled orders remain
// readable with Remaining == 0.
func (e *Engine) OrderByID(class ClassKey, side Side, id OrderID) *Order {
	order := e.store.Order(OrderKey{Book: BookKey{Class: class, Side: side}, ID: id})
	if order == nil {
		return nil
	}
	cp := *order
	return &cp
}

// PredecessorCandidates walks the target's level from the head and
// returns up to MaxPrevCandidates order ids ending at the target's
// predecessor, suitable for CancelParams.PrevCandidates. The window
// slides: for targets deeper than the cap, only the nearest candidates
// are kept. Returns ErrOrderNotFound if the target is not reachable on
// the level (the caller should re-read the order; it may have filled).
func (e *Engine) PredecessorCandidates(class ClassKey, side Side, target OrderID) ([]OrderID, error) {
	bookKey := BookKey{Class: class, Side: side}
	order := e.store.Order(OrderKey{Book: bookKey, ID: target})
	if order == nil || !order.Open() {
		return nil, ErrOrderNotFound
	}

	level := e.store.Level(LevelKey{Book: bookKey, Tick: order.Tick})
	if level.Head == target {
		return nil, nil
	}

	candidates := make([]OrderID, 0, MaxPrevCandidates)
	for id := level.Head; id != 0; {
		node := e.store.Order(OrderKey{Book: bookKey, ID: id})
		if node == nil {
			break
		}
		if len(candidates) == MaxPrevCandidates {
			copy(candidates, candidates[1:])
			candidates = candidates[:MaxPrevCandidates-1]
		}
		candidates = append(candidates, id)
		if node.Next == target {
			return candidates, nil
		}
		id = node.Next
	}
	return nil, ErrOrderNotFound
}

// Depth returns the non-empty levels of one book side ordered from best
// to worst price.
func (e *Engine) Depth(class ClassKey, side Side) []TickDepth {
	book := e.store.Book(class)
	mask := book.Masks[side]
	bookKey := BookKey{Class: class, Side: side}

	var depth []TickDepth
	for {
		tick, ok := mask.Best(side)
		if !ok {
			return depth
		}
		level := e.store.Level(LevelKey{Book: bookKey, Tick: tick})
		depth = append(depth, TickDepth{Tick: tick, Shares: level.Total})
		mask = mask.Clear(tick)
	}
}

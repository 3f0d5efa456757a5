package core

import (
	"context"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/openclob/pointsbook/pkg/messaging"
	"github.com/openclob/pointsbook/pkg/otel"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Engine applies trading and settlement operations against a Store.
// Execution is strictly single-threaded: callers must serialize all
// operations (see pkg/server.Sequencer); every operation either commits
// fully or fails with no state change. All fallible validation runs
// before the first mutation; a post-validation ledger or book
// inconsistency is unrecoverable and panics.
type Engine struct {
	store    Store
	sender   messaging.MessageSender
	treasury UserID
}

// NewEngine creates an Engine over the given store. No events are
// emitted until a sender is attached with SetSender.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// SetSender attaches the event sink for executions and market events.
func (e *Engine) SetSender(sender messaging.MessageSender) {
	e.sender = sender
}

// SetTreasury sets the account credited with the protocol's cut of swept
// fees. Defaults to user 0.
func (e *Engine) SetTreasury(user UserID) {
	e.treasury = user
}

// PlaceParams are the inputs of a limit order placement. Now is supplied
// by the caller; the engine keeps no clock of its own.
type PlaceParams struct {
	Market  MarketID
	Outcome OutcomeID
	User    UserID
	Side    Side
	Tick    Tick
	Size    uint64
	Now     int64
}

// TakeParams are the inputs of a take. Limit bounds the acceptable price
// (maximum for buys, minimum for sells); MinFill fails the whole request
// if less than that many shares can be matched.
type TakeParams struct {
	Market  MarketID
	Outcome OutcomeID
	User    UserID
	Side    Side
	Limit   Tick
	Size    uint64
	MinFill uint64
	Now     int64
}

// CancelParams are the inputs of a cancellation. PrevCandidates is the
// caller-supplied predecessor hint list for non-head orders, at most
// MaxPrevCandidates entries, typically obtained from
// PredecessorCandidates.
type CancelParams struct {
	Market         MarketID
	Outcome        OutcomeID
	User           UserID
	Side           Side
	Order          OrderID
	PrevCandidates []OrderID
}

// PlaceLimit validates, reserves, matches and (if a remainder is left)
// rests a limit order. A fresh order id is allocated unconditionally so
// the caller always gets a stable handle, even for orders that fill
// immediately.
func (e *Engine) PlaceLimit(ctx context.Context, p PlaceParams) (*PlaceResult, error) {
	ctx, span := otel.StartEngineSpan(ctx, otel.SpanPlaceOrder,
		attribute.Int64(otel.AttributeMarket, int64(p.Market)),
		attribute.Int(otel.AttributeOutcome, int(p.Outcome)),
		attribute.String(otel.AttributeSide, p.Side.String()),
		attribute.Int(otel.AttributeTick, int(p.Tick)),
		attribute.Int64(otel.AttributeShares, int64(p.Size)),
	)
	defer span.End()

	market, class, err := e.tradableMarket(p.Market, p.Outcome, p.Now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := validateOrderInputs(p.Side, p.Tick, p.Size); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Worst-case reservation: principal at the limit tick plus the larger
	// of the two fee rates. Excess is refunded after matching.
	rate := maxBps(market.MakerFeeBps, market.TakerFeeBps)
	var locked uint64
	if p.Side == Bid {
		locked = WorstCaseReserve(p.Size, p.Tick, rate)
		if err := e.reservePoints(p.User, locked); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	} else {
		locked = p.Size
		if err := e.reserveShares(p.User, class, locked); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	book := e.store.Book(class)
	book.NextOrderID++
	id := book.NextOrderID

	run := e.newMatchRun(market, class, &book, p.User, p.Side, p.Tick, locked)
	remaining := p.Size
	for remaining > 0 {
		q, ok := run.step(remaining)
		if !ok {
			break
		}
		remaining -= q
	}

	bookKey := BookKey{Class: class, Side: p.Side}
	if remaining > 0 {
		order := &Order{ID: id, Owner: p.User, Tick: p.Tick, Remaining: remaining, Original: p.Size}
		if p.Side == Bid {
			// The remainder re-rests under its own worst case. The unspent
			// reservation always covers that, so the cap only trims
			// headroom, never the backing.
			needed := WorstCaseReserve(remaining, p.Tick, rate)
			if needed > run.locked {
				needed = run.locked
			}
			e.releasePoints(p.User, run.locked-needed)
			order.Locked = needed
		} else {
			order.Locked = run.locked
		}
		e.appendOrder(&book, class, p.Side, order)
	} else {
		// Fully filled: refund whatever the fills did not consume and keep
		// a closed record for auditing.
		if p.Side == Bid {
			e.releasePoints(p.User, run.locked)
		} else {
			e.releaseShares(p.User, class, run.locked)
		}
		e.store.PutOrder(OrderKey{Book: bookKey, ID: id},
			&Order{ID: id, Owner: p.User, Tick: p.Tick, Original: p.Size})
	}
	e.store.PutBook(class, book)
	run.commitAccruals()

	res := &PlaceResult{
		OrderID:      id,
		Filled:       p.Size - remaining,
		PointsTraded: run.points,
		Remaining:    remaining,
		Rested:       remaining > 0,
		Trades:       run.trades,
	}
	e.publishExecution(ctx, p.Market, p.Outcome, p.Side, id, res.Filled, remaining, res.PointsTraded, res.Rested, res.Trades)
	otel.GetEngineMetrics().RecordFills(ctx, "limit", int64(len(res.Trades)))
	span.SetStatus(codes.Ok, "order placed")
	return res, nil
}

// Take matches up to the price bound without ever resting. If fewer than
// MinFill shares are available within the bound, the whole request fails
// before any state is touched; otherwise it commits in full.
func (e *Engine) Take(ctx context.Context, p TakeParams) (*TakeResult, error) {
	ctx, span := otel.StartEngineSpan(ctx, otel.SpanTakeOrder,
		attribute.Int64(otel.AttributeMarket, int64(p.Market)),
		attribute.Int(otel.AttributeOutcome, int(p.Outcome)),
		attribute.String(otel.AttributeSide, p.Side.String()),
		attribute.Int(otel.AttributeTick, int(p.Limit)),
		attribute.Int64(otel.AttributeShares, int64(p.Size)),
	)
	defer span.End()

	market, class, err := e.tradableMarket(p.Market, p.Outcome, p.Now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := validateOrderInputs(p.Side, p.Limit, p.Size); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if p.MinFill > p.Size {
		span.SetStatus(codes.Error, ErrInvalidSize.Error())
		return nil, ErrInvalidSize
	}

	// Dry run against level aggregates: a take either fully commits or
	// fully reverts, so the fill constraint is checked before anything is
	// reserved or matched.
	if fillable := e.previewFill(class, p.Side, p.Limit, p.Size); fillable < p.MinFill {
		span.SetStatus(codes.Error, ErrMinFillNotMet.Error())
		return nil, ErrMinFillNotMet
	}

	rate := maxBps(market.MakerFeeBps, market.TakerFeeBps)
	var locked uint64
	if p.Side == Bid {
		locked = WorstCaseReserve(p.Size, p.Limit, rate)
		if err := e.reservePoints(p.User, locked); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	} else {
		locked = p.Size
		if err := e.reserveShares(p.User, class, locked); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	book := e.store.Book(class)
	run := e.newMatchRun(market, class, &book, p.User, p.Side, p.Limit, locked)
	remaining := p.Size
	for remaining > 0 {
		q, ok := run.step(remaining)
		if !ok {
			break
		}
		remaining -= q
	}

	// Release the reservation backing the unfilled remainder.
	if p.Side == Bid {
		e.releasePoints(p.User, run.locked)
	} else {
		e.releaseShares(p.User, class, run.locked)
	}
	e.store.PutBook(class, book)
	run.commitAccruals()

	res := &TakeResult{
		Filled:       p.Size - remaining,
		PointsTraded: run.points,
		Trades:       run.trades,
	}
	e.publishExecution(ctx, p.Market, p.Outcome, p.Side, 0, res.Filled, 0, res.PointsTraded, false, res.Trades)
	otel.GetEngineMetrics().RecordFills(ctx, "take", int64(len(res.Trades)))
	span.SetStatus(codes.Ok, "take executed")
	return res, nil
}

// Cancel removes a resting order, releases its remaining reservation and
// returns the cancelled share count. Head orders unlink in O(1); non-head
// orders require a valid predecessor among the supplied candidates,
// otherwise the cancellation fails without touching state. Cancellation
// is permitted in every market state.
func (e *Engine) Cancel(ctx context.Context, p CancelParams) (uint64, error) {
	ctx, span := otel.StartEngineSpan(ctx, otel.SpanCancelOrder,
		attribute.Int64(otel.AttributeMarket, int64(p.Market)),
		attribute.Int(otel.AttributeOutcome, int(p.Outcome)),
		attribute.String(otel.AttributeSide, p.Side.String()),
		attribute.Int64(otel.AttributeOrderID, int64(p.Order)),
	)
	defer span.End()

	class, err := e.marketClass(p.Market, p.Outcome)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	if !p.Side.Valid() {
		span.SetStatus(codes.Error, ErrInvalidSide.Error())
		return 0, ErrInvalidSide
	}
	if len(p.PrevCandidates) > MaxPrevCandidates {
		span.SetStatus(codes.Error, ErrTooManyCandidates.Error())
		return 0, ErrTooManyCandidates
	}

	bookKey := BookKey{Class: class, Side: p.Side}
	key := OrderKey{Book: bookKey, ID: p.Order}
	order := e.store.Order(key)
	if order == nil {
		span.SetStatus(codes.Error, ErrOrderNotFound.Error())
		return 0, ErrOrderNotFound
	}
	if order.Owner != p.User {
		span.SetStatus(codes.Error, ErrNotOrderOwner.Error())
		return 0, ErrNotOrderOwner
	}
	if !order.Open() {
		span.SetStatus(codes.Error, ErrOrderNotOpen.Error())
		return 0, ErrOrderNotOpen
	}

	lk := LevelKey{Book: bookKey, Tick: order.Tick}
	level := e.store.Level(lk)

	var prev *Order
	var prevKey OrderKey
	if level.Head != p.Order {
		for _, cid := range p.PrevCandidates {
			if cid == p.Order {
				continue
			}
			ck := OrderKey{Book: bookKey, ID: cid}
			cand := e.store.Order(ck)
			if cand.Open() && cand.Tick == order.Tick && cand.Next == p.Order {
				prev, prevKey = cand, ck
				break
			}
		}
		if prev == nil {
			span.SetStatus(codes.Error, ErrNoValidPredecessor.Error())
			return 0, ErrNoValidPredecessor
		}
	}

	// Validation is done; everything below must succeed.
	if prev == nil {
		level.Head = order.Next
	} else {
		prev.Next = order.Next
		if level.Tail == p.Order {
			level.Tail = prev.ID
		}
		e.store.PutOrder(prevKey, prev)
	}
	level.Total -= order.Remaining
	if level.Total == 0 {
		level.Head, level.Tail = 0, 0
		book := e.store.Book(class)
		book.Masks[p.Side] = book.Masks[p.Side].Clear(order.Tick)
		e.store.PutBook(class, book)
	}
	e.store.PutLevel(lk, level)

	cancelled := order.Remaining
	if p.Side == Bid {
		e.releasePoints(order.Owner, order.Locked)
	} else {
		e.releaseShares(order.Owner, class, order.Locked)
	}
	order.Remaining, order.Locked, order.Next = 0, 0, 0
	e.store.PutOrder(key, order)

	otel.GetEngineMetrics().RecordCancel(ctx)
	span.SetStatus(codes.Ok, "order cancelled")
	return cancelled, nil
}

// matchRun carries the mutable state of one matching loop: the taker's
// remaining tracked reservation plus the fee, dust and trade accruals
// committed at the end of the operation.
type matchRun struct {
	engine    *Engine
	market    *Market
	class     ClassKey
	book      *BookState
	taker     UserID
	takerSide Side
	limit     Tick
	locked    uint64
	points    uint64
	fees      uint64
	dust      uint64
	trades    []Trade
}

func (e *Engine) newMatchRun(market *Market, class ClassKey, book *BookState, taker UserID, side Side, limit Tick, locked uint64) *matchRun {
	return &matchRun{
		engine:    e,
		market:    market,
		class:     class,
		book:      book,
		taker:     taker,
		takerSide: side,
		limit:     limit,
		locked:    locked,
	}
}

// step performs one matching step: find the best maker level via the
// mask, fill min(head remaining, taker remaining) against the head
// order, and unlink the head if it is now fully filled. Returns false
// when no further match is possible (book side empty or price constraint
// failed). Each step either removes a maker order or exhausts the taker,
// so the caller's loop terminates in at most O(makers touched).
func (m *matchRun) step(remaining uint64) (uint64, bool) {
	makerSide := m.takerSide.Opposite()
	mask := m.book.Masks[makerSide]
	best, ok := mask.Best(makerSide)
	if !ok {
		return 0, false
	}
	if m.takerSide == Bid && best > m.limit {
		return 0, false
	}
	if m.takerSide == Ask && best < m.limit {
		return 0, false
	}

	makerBook := BookKey{Class: m.class, Side: makerSide}
	lk := LevelKey{Book: makerBook, Tick: best}
	level := m.engine.store.Level(lk)
	headKey := OrderKey{Book: makerBook, ID: level.Head}
	head := m.engine.store.Order(headKey)
	if !head.Open() {
		panic(fmt.Sprintf("book %v: mask bit %d set but head %d not open", makerBook, best, level.Head))
	}

	q := head.Remaining
	if remaining < q {
		q = remaining
	}
	m.settle(head, best, q, makerSide)

	head.Remaining -= q
	level.Total -= q
	if head.Remaining == 0 {
		// Fee-rate and rounding residue of the maker's reservation is
		// refunded the moment the order leaves the book.
		if head.Locked > 0 {
			if makerSide == Bid {
				m.engine.releasePoints(head.Owner, head.Locked)
			} else {
				m.engine.releaseShares(head.Owner, m.class, head.Locked)
			}
			head.Locked = 0
		}
		level.Head = head.Next
		head.Next = 0
		if level.Total == 0 {
			level.Tail = 0
			m.book.Masks[makerSide] = mask.Clear(best)
		}
	}
	m.engine.store.PutOrder(headKey, head)
	m.engine.store.PutLevel(lk, level)
	return q, true
}

// settle moves value for one fill. The buyer always pays the ceiled
// principal plus its own fee out of reserved Points; the seller's
// reserved shares are consumed and the floored principal minus its own
// fee is credited free. Dust and both fees accrue on the run.
func (m *matchRun) settle(maker *Order, tick Tick, q uint64, makerSide Side) {
	gross := SellerGross(q, tick)
	cost := BuyerCost(q, tick)
	makerFee := FeeOn(gross, m.market.MakerFeeBps)
	takerFee := FeeOn(gross, m.market.TakerFeeBps)

	if m.takerSide == Bid {
		// Taker buys from the resting ask.
		need := cost + takerFee
		if need > m.locked {
			panic(fmt.Sprintf("book: taker reservation exhausted: need %d, locked %d", need, m.locked))
		}
		m.engine.consumePoints(m.taker, need)
		m.locked -= need
		m.engine.creditShares(m.taker, m.class, q)

		if q > maker.Locked {
			panic(fmt.Sprintf("book: maker %d share reservation exhausted", maker.ID))
		}
		m.engine.consumeShares(maker.Owner, m.class, q)
		maker.Locked -= q
		m.engine.creditPoints(maker.Owner, gross-makerFee)
	} else {
		// Taker sells into the resting bid.
		if q > m.locked {
			panic(fmt.Sprintf("book: taker share reservation exhausted: need %d, locked %d", q, m.locked))
		}
		m.engine.consumeShares(m.taker, m.class, q)
		m.locked -= q
		m.engine.creditPoints(m.taker, gross-takerFee)

		need := cost + makerFee
		if need > maker.Locked {
			panic(fmt.Sprintf("book: maker %d point reservation exhausted: need %d, locked %d", maker.ID, need, maker.Locked))
		}
		m.engine.consumePoints(maker.Owner, need)
		maker.Locked -= need
		m.engine.creditShares(maker.Owner, m.class, q)
	}

	m.fees += makerFee + takerFee
	m.dust += cost - gross
	m.points += cost
	m.trades = append(m.trades, Trade{
		Market:      m.market.ID,
		Outcome:     m.class.Outcome,
		MakerOrder:  maker.ID,
		Maker:       maker.Owner,
		Taker:       m.taker,
		TakerSide:   m.takerSide,
		Tick:        tick,
		Shares:      q,
		SellerGross: gross,
		BuyerCost:   cost,
		Dust:        cost - gross,
		MakerFee:    makerFee,
		TakerFee:    takerFee,
	})
}

// commitAccruals writes the run's fee and dust accruals back to the
// market record and the protocol pool.
func (m *matchRun) commitAccruals() {
	if m.fees > 0 {
		m.market.FeePool += m.fees
		m.engine.store.PutMarket(m.market)
	}
	if m.dust > 0 {
		meta := m.engine.store.Meta()
		meta.Dust += m.dust
		m.engine.store.PutMeta(meta)
	}
}

// previewFill computes, read-only, how many shares a take could match
// within its price bound. Level aggregates are enough; no order records
// are touched.
func (e *Engine) previewFill(class ClassKey, side Side, limit Tick, size uint64) uint64 {
	book := e.store.Book(class)
	makerSide := side.Opposite()
	mask := book.Masks[makerSide]
	makerBook := BookKey{Class: class, Side: makerSide}

	var total uint64
	for total < size {
		best, ok := mask.Best(makerSide)
		if !ok {
			break
		}
		if side == Bid && best > limit {
			break
		}
		if side == Ask && best < limit {
			break
		}
		level := e.store.Level(LevelKey{Book: makerBook, Tick: best})
		avail := level.Total
		if avail > size-total {
			avail = size - total
		}
		total += avail
		mask = mask.Clear(best)
	}
	return total
}

// appendOrder links a new resting order behind the level tail, updates
// the aggregate and sets the mask bit if the level was empty.
func (e *Engine) appendOrder(book *BookState, class ClassKey, side Side, order *Order) {
	bk := BookKey{Class: class, Side: side}
	lk := LevelKey{Book: bk, Tick: order.Tick}
	level := e.store.Level(lk)
	if level.Empty() {
		level.Head, level.Tail = order.ID, order.ID
		book.Masks[side] = book.Masks[side].Set(order.Tick)
	} else {
		tailKey := OrderKey{Book: bk, ID: level.Tail}
		tail := e.store.Order(tailKey)
		if !tail.Open() {
			panic(fmt.Sprintf("book %v: tail %d not open", bk, level.Tail))
		}
		tail.Next = order.ID
		e.store.PutOrder(tailKey, tail)
		level.Tail = order.ID
	}
	level.Total += order.Remaining
	e.store.PutLevel(lk, level)
	e.store.PutOrder(OrderKey{Book: bk, ID: order.ID}, order)
}

func validateOrderInputs(side Side, tick Tick, size uint64) error {
	if !side.Valid() {
		return ErrInvalidSide
	}
	if !tick.Valid() {
		return ErrInvalidTick
	}
	if size == 0 || size > MaxOrderShares {
		return ErrInvalidSize
	}
	return nil
}

func (e *Engine) marketClass(id MarketID, outcome OutcomeID) (ClassKey, error) {
	market := e.store.Market(id)
	if market == nil {
		return ClassKey{}, ErrMarketNotFound
	}
	if outcome >= market.Outcomes {
		return ClassKey{}, ErrInvalidOutcome
	}
	return ClassKey{Market: id, Outcome: outcome}, nil
}

func (e *Engine) tradableMarket(id MarketID, outcome OutcomeID, now int64) (*Market, ClassKey, error) {
	market := e.store.Market(id)
	if market == nil {
		return nil, ClassKey{}, ErrMarketNotFound
	}
	if outcome >= market.Outcomes {
		return nil, ClassKey{}, ErrInvalidOutcome
	}
	if market.State(now) != StateActive {
		return nil, ClassKey{}, ErrMarketNotActive
	}
	return market, ClassKey{Market: id, Outcome: outcome}, nil
}

// publishExecution converts and emits one execution event. Emission is
// best effort: a sink failure is recorded on the span, never propagated
// into the already-committed operation.
func (e *Engine) publishExecution(ctx context.Context, market MarketID, outcome OutcomeID, side Side, id OrderID, filled, remaining, points uint64, rested bool, trades []Trade) {
	if e.sender == nil || (filled == 0 && !rested) {
		return
	}
	ctx, span := otel.StartEngineSpan(ctx, otel.SpanPublish,
		attribute.Int(otel.AttributeTradeCount, len(trades)),
	)
	defer span.End()

	msg := &messaging.ExecutionMessage{
		EventID:   xid.New().String(),
		Market:    uint32(market),
		Outcome:   uint16(outcome),
		Side:      side.String(),
		OrderID:   uint64(id),
		Filled:    formatShares(filled),
		Remaining: formatShares(remaining),
		Points:    formatPoints(points),
		Rested:    rested,
		Trades:    convertTrades(trades),
	}
	if err := e.sender.SendExecution(ctx, msg); err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("failed to send execution: %v", err))
		return
	}
	span.SetStatus(codes.Ok, "execution published")
}

func (e *Engine) publishMarketEvent(ctx context.Context, msg *messaging.MarketEventMessage) {
	if e.sender == nil {
		return
	}
	msg.EventID = xid.New().String()
	if err := e.sender.SendMarketEvent(ctx, msg); err != nil {
		span := otel.SpanFromContext(ctx)
		otel.AddAttributes(span, attribute.String("publish.error", err.Error()))
	}
}

// convertTrades maps fills to their wire representation. Prices are
// rendered as decimal Points per share (tick/100); integer amounts are
// rendered as decimal strings for symmetry with prices.
func convertTrades(trades []Trade) []messaging.TradeMessage {
	converted := make([]messaging.TradeMessage, len(trades))
	for i, t := range trades {
		converted[i] = messaging.TradeMessage{
			MakerOrder:  uint64(t.MakerOrder),
			Maker:       uint64(t.Maker),
			Taker:       uint64(t.Taker),
			TakerSide:   t.TakerSide.String(),
			Price:       formatTick(t.Tick),
			Shares:      formatShares(t.Shares),
			SellerGross: formatPoints(t.SellerGross),
			BuyerCost:   formatPoints(t.BuyerCost),
			Dust:        formatPoints(t.Dust),
			MakerFee:    formatPoints(t.MakerFee),
			TakerFee:    formatPoints(t.TakerFee),
		}
	}
	return converted
}

func formatTick(t Tick) string {
	return fpdecimal.FromFloat(float64(t) / 100.0).String()
}

func formatShares(v uint64) string {
	return fpdecimal.FromInt(int64(v)).String()
}

func formatPoints(v uint64) string {
	return fpdecimal.FromInt(int64(v)).String()
}

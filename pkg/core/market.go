package core

import (
	"context"

	"github.com/openclob/pointsbook/pkg/messaging"
)

// MarketState is the derived trading phase of a market.
type MarketState uint8

// Market states, in derivation priority order.
const (
	StateActive MarketState = iota
	StateExpired
	StateResolvedPending
	StateResolvedFinal
)

// String returns the state as string
func (s MarketState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateExpired:
		return "EXPIRED"
	case StateResolvedPending:
		return "RESOLVED_PENDING"
	case StateResolvedFinal:
		return "RESOLVED_FINAL"
	default:
		return "UNKNOWN"
	}
}

// Market holds immutable creation parameters plus the resolver-mutated
// resolution flags. Markets are created once and never deleted; the flags
// only move forward.
type Market struct {
	ID       MarketID
	Creator  UserID
	Resolver UserID
	// Outcomes is the number of outcome share classes, numbered from 0.
	Outcomes      OutcomeID
	MakerFeeBps   uint32
	TakerFeeBps   uint32
	CreatorFeeBps uint32
	// ExpiresAt is a unix timestamp; zero means the market never expires.
	ExpiresAt int64
	// EarlyResolve permits resolution before expiry.
	EarlyResolve bool

	Resolved  bool
	Finalized bool
	Winner    OutcomeID

	// FeePool accrues trading fees until swept.
	FeePool uint64
}

// State derives the current trading phase. Resolution strictly supersedes
// expiration: a market can move straight to RESOLVED_PENDING even past
// its expiry. The caller supplies now; the engine keeps no clock.
func (m *Market) State(now int64) MarketState {
	switch {
	case m.Finalized:
		return StateResolvedFinal
	case m.Resolved:
		return StateResolvedPending
	case m.ExpiresAt != 0 && now >= m.ExpiresAt:
		return StateExpired
	default:
		return StateActive
	}
}

// CanResolve reports whether resolution is permitted at the given time.
func (m *Market) CanResolve(now int64) bool {
	return m.EarlyResolve || (m.ExpiresAt != 0 && now >= m.ExpiresAt)
}

// CreateMarketParams are the immutable parameters of a new market.
type CreateMarketParams struct {
	Creator       UserID
	Resolver      UserID
	Outcomes      OutcomeID
	MakerFeeBps   uint32
	TakerFeeBps   uint32
	CreatorFeeBps uint32
	ExpiresAt     int64
	EarlyResolve  bool
}

// CreateMarket allocates a market id and stores the market record. Fee
// rates are capped at 100%; at least two outcome classes are required.
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (*Market, error) {
	if p.Outcomes < 2 {
		return nil, ErrInvalidOutcome
	}
	if uint64(p.MakerFeeBps) > FeeDenominator ||
		uint64(p.TakerFeeBps) > FeeDenominator ||
		uint64(p.CreatorFeeBps) > FeeDenominator {
		return nil, ErrInvalidFeeRate
	}

	meta := e.store.Meta()
	meta.NextMarketID++
	market := &Market{
		ID:            meta.NextMarketID,
		Creator:       p.Creator,
		Resolver:      p.Resolver,
		Outcomes:      p.Outcomes,
		MakerFeeBps:   p.MakerFeeBps,
		TakerFeeBps:   p.TakerFeeBps,
		CreatorFeeBps: p.CreatorFeeBps,
		ExpiresAt:     p.ExpiresAt,
		EarlyResolve:  p.EarlyResolve,
	}
	e.store.PutMarket(market)
	e.store.PutMeta(meta)

	e.publishMarketEvent(ctx, &messaging.MarketEventMessage{
		Market: uint32(market.ID),
		Type:   messaging.MarketCreated,
	})
	return market, nil
}

// ResolveMarket marks winner as the winning outcome. Only the designated
// resolver may resolve, and only once the market is past expiry or flagged
// for early resolution.
func (e *Engine) ResolveMarket(ctx context.Context, id MarketID, resolver UserID, winner OutcomeID, now int64) error {
	market := e.store.Market(id)
	if market == nil {
		return ErrMarketNotFound
	}
	if resolver != market.Resolver {
		return ErrNotResolver
	}
	if winner >= market.Outcomes {
		return ErrInvalidOutcome
	}
	if market.Finalized {
		return ErrAlreadyFinalized
	}
	if market.Resolved {
		return ErrAlreadyResolved
	}
	if !market.CanResolve(now) {
		return ErrResolveNotAllowed
	}

	market.Resolved = true
	market.Winner = winner
	e.store.PutMarket(market)

	e.publishMarketEvent(ctx, &messaging.MarketEventMessage{
		Market:  uint32(id),
		Type:    messaging.MarketResolved,
		Winner:  uint16(winner),
		Pending: true,
	})
	return nil
}

// FinalizeMarket makes a pending resolution terminal.
func (e *Engine) FinalizeMarket(ctx context.Context, id MarketID, resolver UserID) error {
	market := e.store.Market(id)
	if market == nil {
		return ErrMarketNotFound
	}
	if resolver != market.Resolver {
		return ErrNotResolver
	}
	if market.Finalized {
		return ErrAlreadyFinalized
	}
	if !market.Resolved {
		return ErrNotResolved
	}

	market.Finalized = true
	e.store.PutMarket(market)

	e.publishMarketEvent(ctx, &messaging.MarketEventMessage{
		Market: uint32(id),
		Type:   messaging.MarketFinalized,
		Winner: uint16(market.Winner),
	})
	return nil
}

// SweepFees drains the market's accrued fee pool, crediting the creator
// its cut (floored at the creator-fee rate) and the treasury the rest.
// Sweeping an empty pool is a no-op, so the operation is idempotent.
func (e *Engine) SweepFees(ctx context.Context, id MarketID) (FeeSweep, error) {
	market := e.store.Market(id)
	if market == nil {
		return FeeSweep{}, ErrMarketNotFound
	}
	pool := market.FeePool
	if pool == 0 {
		return FeeSweep{}, nil
	}

	creatorCut := pool * uint64(market.CreatorFeeBps) / FeeDenominator
	protocolCut := pool - creatorCut
	market.FeePool = 0
	e.store.PutMarket(market)
	e.creditPoints(market.Creator, creatorCut)
	e.creditPoints(e.treasury, protocolCut)

	sweep := FeeSweep{CreatorCut: creatorCut, ProtocolCut: protocolCut}
	e.publishMarketEvent(ctx, &messaging.MarketEventMessage{
		Market:      uint32(id),
		Type:        messaging.MarketFeesSwept,
		CreatorCut:  formatPoints(creatorCut),
		ProtocolCut: formatPoints(protocolCut),
	})
	return sweep, nil
}

// MarketByID returns a copy of the market record, or nil when absent.
func (e *Engine) MarketByID(id MarketID) *Market {
	market := e.store.Market(id)
	if market == nil {
		return nil
	}
	cp := *market
	return &cp
}

// MarketStateAt derives the market's trading phase at the given time.
func (e *Engine) MarketStateAt(id MarketID, now int64) (MarketState, error) {
	market := e.store.Market(id)
	if market == nil {
		return StateActive, ErrMarketNotFound
	}
	return market.State(now), nil
}

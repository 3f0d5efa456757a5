package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketState_Derivation(t *testing.T) {
	const expiry = int64(1000)

	tests := []struct {
		name      string
		market    Market
		now       int64
		want      MarketState
	}{
		{"fresh market", Market{}, 500, StateActive},
		{"before expiry", Market{ExpiresAt: expiry}, 999, StateActive},
		{"at expiry", Market{ExpiresAt: expiry}, 1000, StateExpired},
		{"past expiry", Market{ExpiresAt: expiry}, 2000, StateExpired},
		{"never expires", Market{ExpiresAt: 0}, 1 << 40, StateActive},
		{"resolved beats expired", Market{ExpiresAt: expiry, Resolved: true}, 2000, StateResolvedPending},
		{"resolved before expiry", Market{ExpiresAt: expiry, Resolved: true}, 500, StateResolvedPending},
		{"finalized is terminal", Market{ExpiresAt: expiry, Resolved: true, Finalized: true}, 500, StateResolvedFinal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.market.State(tt.now))
		})
	}
}

func TestMarket_CanResolve(t *testing.T) {
	m := Market{ExpiresAt: 1000}
	assert.False(t, m.CanResolve(500))
	assert.True(t, m.CanResolve(1000))

	m.EarlyResolve = true
	assert.True(t, m.CanResolve(500))

	// A market without expiry can only resolve early.
	open := Market{}
	assert.False(t, open.CanResolve(1 << 40))
	open.EarlyResolve = true
	assert.True(t, open.CanResolve(0))
}

func TestCreateMarket(t *testing.T) {
	store := newTestStore()
	e := NewEngine(store)
	ctx := context.Background()

	first, err := e.CreateMarket(ctx, CreateMarketParams{Creator: 1, Resolver: 2, Outcomes: 2})
	require.NoError(t, err)
	assert.Equal(t, MarketID(1), first.ID)

	second, err := e.CreateMarket(ctx, CreateMarketParams{Creator: 1, Resolver: 2, Outcomes: 8})
	require.NoError(t, err)
	assert.Equal(t, MarketID(2), second.ID)

	// Validation failures.
	_, err = e.CreateMarket(ctx, CreateMarketParams{Creator: 1, Resolver: 2, Outcomes: 1})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = e.CreateMarket(ctx, CreateMarketParams{Creator: 1, Resolver: 2, Outcomes: 2, TakerFeeBps: 10001})
	assert.ErrorIs(t, err, ErrInvalidFeeRate)

	// Failed creations must not burn ids.
	third, err := e.CreateMarket(ctx, CreateMarketParams{Creator: 1, Resolver: 2, Outcomes: 2})
	require.NoError(t, err)
	assert.Equal(t, MarketID(3), third.ID)
}

func TestResolveAndFinalize(t *testing.T) {
	store := newTestStore()
	e := NewEngine(store)
	ctx := context.Background()

	market, err := e.CreateMarket(ctx, CreateMarketParams{Creator: 1, Resolver: 2, Outcomes: 2, ExpiresAt: 1000})
	require.NoError(t, err)
	id := market.ID

	// Too early without the early-resolve flag.
	assert.ErrorIs(t, e.ResolveMarket(ctx, id, 2, 0, 500), ErrResolveNotAllowed)

	// Wrong resolver, wrong winner.
	assert.ErrorIs(t, e.ResolveMarket(ctx, id, 3, 0, 2000), ErrNotResolver)
	assert.ErrorIs(t, e.ResolveMarket(ctx, id, 2, 5, 2000), ErrInvalidOutcome)

	// Finalize before resolve.
	assert.ErrorIs(t, e.FinalizeMarket(ctx, id, 2), ErrNotResolved)

	require.NoError(t, e.ResolveMarket(ctx, id, 2, 1, 2000))
	state, err := e.MarketStateAt(id, 2000)
	require.NoError(t, err)
	assert.Equal(t, StateResolvedPending, state)

	// Double resolve.
	assert.ErrorIs(t, e.ResolveMarket(ctx, id, 2, 0, 2000), ErrAlreadyResolved)

	require.NoError(t, e.FinalizeMarket(ctx, id, 2))
	state, err = e.MarketStateAt(id, 2000)
	require.NoError(t, err)
	assert.Equal(t, StateResolvedFinal, state)
	assert.Equal(t, OutcomeID(1), e.MarketByID(id).Winner)

	// Terminal.
	assert.ErrorIs(t, e.FinalizeMarket(ctx, id, 2), ErrAlreadyFinalized)
	assert.ErrorIs(t, e.ResolveMarket(ctx, id, 2, 0, 2000), ErrAlreadyFinalized)

	// Unknown market.
	assert.ErrorIs(t, e.ResolveMarket(ctx, 99, 2, 0, 2000), ErrMarketNotFound)
	_, err = e.MarketStateAt(99, 2000)
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestSweepFees(t *testing.T) {
	store := newTestStore()
	e := NewEngine(store)
	e.SetTreasury(9)
	ctx := context.Background()

	market, err := e.CreateMarket(ctx, CreateMarketParams{Creator: 1, Resolver: 2, Outcomes: 2, CreatorFeeBps: 2500})
	require.NoError(t, err)

	// Simulate accrued fees.
	market.FeePool = 10
	store.PutMarket(market)

	sweep, err := e.SweepFees(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sweep.CreatorCut) // floor(10 * 2500 / 10000)
	assert.Equal(t, uint64(8), sweep.ProtocolCut)
	assert.Equal(t, uint64(2), e.PointsBalance(1).Free)
	assert.Equal(t, uint64(8), e.PointsBalance(9).Free)
	assert.Zero(t, e.MarketByID(market.ID).FeePool)

	// Sweeping again is a no-op.
	sweep, err = e.SweepFees(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, FeeSweep{}, sweep)
	assert.Equal(t, uint64(2), e.PointsBalance(1).Free)

	_, err = e.SweepFees(ctx, 99)
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

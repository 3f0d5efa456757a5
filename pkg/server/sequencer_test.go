package server

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclob/pointsbook/pkg/backend/memory"
	"github.com/openclob/pointsbook/pkg/core"
)

const testNow = int64(1_700_000_000)

func newTestSequencer(t *testing.T) *Sequencer {
	t.Helper()
	engine := core.NewEngine(memory.NewMemoryBackend())
	seq := NewSequencer("test", engine, nil)
	seq.SetClock(func() int64 { return testNow })
	seq.Start()
	t.Cleanup(seq.Stop)
	return seq
}

func createTestMarket(t *testing.T, seq *Sequencer) core.ClassKey {
	t.Helper()
	market, err := seq.CreateMarket(context.Background(), core.CreateMarketParams{
		Creator:      100,
		Resolver:     101,
		Outcomes:     2,
		EarlyResolve: true,
	})
	require.NoError(t, err)
	return core.ClassKey{Market: market.ID, Outcome: 0}
}

func TestSequencer_PlaceAndMatch(t *testing.T) {
	seq := newTestSequencer(t)
	class := createTestMarket(t, seq)
	ctx := context.Background()

	require.NoError(t, seq.DepositShares(ctx, 1, class, 100))
	require.NoError(t, seq.Deposit(ctx, 2, 150))

	ask, err := seq.PlaceLimit(ctx, core.PlaceParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 1, Side: core.Ask, Tick: 50, Size: 100,
	})
	require.NoError(t, err)
	assert.True(t, ask.Rested)

	bid, err := seq.PlaceLimit(ctx, core.PlaceParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 2, Side: core.Bid, Tick: 50, Size: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bid.Filled)
	assert.False(t, bid.Rested)

	engine := seq.Engine()
	assert.Equal(t, uint64(100), engine.ShareBalance(2, class).Free)
	assert.Equal(t, uint64(50), engine.PointsBalance(1).Free)
}

func TestSequencer_StampsClock(t *testing.T) {
	seq := newTestSequencer(t)

	// The market expires before the sequencer clock; placements must be
	// rejected because Now is stamped server-side.
	market, err := seq.CreateMarket(context.Background(), core.CreateMarketParams{
		Creator:   100,
		Resolver:  101,
		Outcomes:  2,
		ExpiresAt: testNow - 1,
	})
	require.NoError(t, err)

	require.NoError(t, seq.Deposit(context.Background(), 1, 100))
	_, err = seq.PlaceLimit(context.Background(), core.PlaceParams{
		Market: market.ID, User: 1, Side: core.Bid, Tick: 50, Size: 10,
	})
	assert.ErrorIs(t, err, core.ErrMarketNotActive)
}

func TestSequencer_CancelThroughQueue(t *testing.T) {
	seq := newTestSequencer(t)
	class := createTestMarket(t, seq)
	ctx := context.Background()

	require.NoError(t, seq.Deposit(ctx, 1, 140))
	bid, err := seq.PlaceLimit(ctx, core.PlaceParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 1, Side: core.Bid, Tick: 40, Size: 100,
	})
	require.NoError(t, err)

	cancelled, err := seq.Cancel(ctx, core.CancelParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 1, Side: core.Bid, Order: bid.OrderID,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cancelled)
	assert.Equal(t, uint64(140), seq.Engine().PointsBalance(1).Free)
}

func TestSequencer_SerializesConcurrentCommands(t *testing.T) {
	seq := newTestSequencer(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := seq.Deposit(ctx, 1, 1); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*perWorker), seq.Engine().PointsBalance(1).Free)
}

func TestSequencer_StopRejectsCommands(t *testing.T) {
	engine := core.NewEngine(memory.NewMemoryBackend())
	seq := NewSequencer("stopped", engine, nil)
	seq.Start()
	seq.Stop()

	err := seq.Deposit(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrSequencerStopped)
}

func TestSequencer_StopRejectsLateSubmits(t *testing.T) {
	engine := core.NewEngine(memory.NewMemoryBackend())
	seq := NewSequencer("stopped", engine, nil)
	seq.Start()
	seq.Stop()

	// The command buffer still accepts sends after the loop has exited,
	// so a submit can win the enqueue race against the closed stop
	// channel. Every submit must come back rejected instead of waiting
	// for a reply that will never arrive.
	ctx := context.Background()
	for i := 0; i < 2*commandBuffer; i++ {
		err := seq.Deposit(ctx, 1, 1)
		assert.ErrorIs(t, err, ErrSequencerStopped)
	}
	assert.Equal(t, uint64(0), seq.Engine().PointsBalance(1).Free)
}

func TestSequencer_ResolveAndSweep(t *testing.T) {
	seq := newTestSequencer(t)
	class := createTestMarket(t, seq)
	ctx := context.Background()

	require.NoError(t, seq.ResolveMarket(ctx, class.Market, 101, 1))
	require.NoError(t, seq.FinalizeMarket(ctx, class.Market, 101))

	state, err := seq.Engine().MarketStateAt(class.Market, testNow)
	require.NoError(t, err)
	assert.Equal(t, core.StateResolvedFinal, state)

	sweep, err := seq.SweepFees(ctx, class.Market)
	require.NoError(t, err)
	assert.Equal(t, core.FeeSweep{}, sweep)
}

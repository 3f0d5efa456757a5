package main

import (
	"context"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/openclob/pointsbook/pkg/backend/memory"
	"github.com/openclob/pointsbook/pkg/core"
	"github.com/openclob/pointsbook/pkg/messaging"
)

func main() {
	ctx := context.Background()

	engine := core.NewEngine(memory.NewMemoryBackend())
	sender := messaging.NewMockMessageSender()
	engine.SetSender(sender)

	// Create a two-outcome market with a 2% taker fee; the creator keeps a
	// quarter of swept fees.
	market, err := engine.CreateMarket(ctx, core.CreateMarketParams{
		Creator:       100,
		Resolver:      100,
		Outcomes:      2,
		TakerFeeBps:   200,
		CreatorFeeBps: 2500,
		EarlyResolve:  true,
	})
	if err != nil {
		panic(err)
	}
	class := core.ClassKey{Market: market.ID, Outcome: 0}
	fmt.Printf("Created market %d with %d outcomes\n", market.ID, market.Outcomes)

	// Fund a seller with shares and a buyer with points.
	engine.CreditFreeShares(1, class, 100)
	engine.CreditFreePoints(2, 200)

	// The seller quotes 100 shares at 50 ticks (0.50 Points per share).
	ask, err := engine.PlaceLimit(ctx, core.PlaceParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 1, Side: core.Ask, Tick: 50, Size: 100, Now: 1,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Seller rested order %d at tick %s\n", ask.OrderID, formatTick(50))

	// The buyer crosses the spread and fills the whole quote.
	bid, err := engine.PlaceLimit(ctx, core.PlaceParams{
		Market: class.Market, Outcome: class.Outcome,
		User: 2, Side: core.Bid, Tick: 50, Size: 100, Now: 2,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Buyer filled %d shares for %s Points (order %d)\n",
		bid.Filled, formatPoints(bid.PointsTraded), bid.OrderID)

	for _, trade := range bid.Trades {
		fmt.Printf("  trade: %d shares at %s, taker fee %s\n",
			trade.Shares, formatTick(trade.Tick), formatPoints(trade.TakerFee))
	}

	fmt.Printf("Buyer now holds %d shares, seller holds %s Points\n",
		engine.ShareBalance(2, class).Free, formatPoints(engine.PointsBalance(1).Free))

	// Resolve outcome 0 as the winner and sweep the accrued fees.
	if err := engine.ResolveMarket(ctx, market.ID, 100, 0, 3); err != nil {
		panic(err)
	}
	if err := engine.FinalizeMarket(ctx, market.ID, 100); err != nil {
		panic(err)
	}
	sweep, err := engine.SweepFees(ctx, market.ID)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Swept fees: creator %s, protocol %s\n",
		formatPoints(sweep.CreatorCut), formatPoints(sweep.ProtocolCut))

	fmt.Printf("Published %d execution events\n", len(sender.Executions()))
}

func formatTick(t core.Tick) string {
	return fpdecimal.FromFloat(float64(t) / 100).String()
}

func formatPoints(v uint64) string {
	return fpdecimal.FromInt(int64(v)).String()
}

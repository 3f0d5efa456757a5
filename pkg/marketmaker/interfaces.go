package marketmaker

import (
	"context"

	"github.com/openclob/pointsbook/pkg/core"
)

// Quote is one order the strategy wants resting on the book.
type Quote struct {
	Side core.Side
	Tick core.Tick
	Size uint64
}

// OrderRef identifies a placed order for later cancellation.
type OrderRef struct {
	Side core.Side
	ID   core.OrderID
}

// ProbabilityFetcher defines the interface for fetching the external
// probability estimate the quotes are centered on
type ProbabilityFetcher interface {
	// FetchProbability returns the current outcome probability in (0, 1)
	FetchProbability(ctx context.Context) (float64, error)
	// Close releases any resources held by the fetcher
	Close() error
}

// OrderPlacer defines the interface for placing and canceling orders
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, quote Quote) (OrderRef, error)
	CancelOrder(ctx context.Context, ref OrderRef) error
	Close() error
}

// Strategy defines the interface for market making strategies
type Strategy interface {
	// CalculateQuotes calculates the quotes to be placed around the
	// given probability estimate
	CalculateQuotes(ctx context.Context, probability float64) ([]Quote, error)
}

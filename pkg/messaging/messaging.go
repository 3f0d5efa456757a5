package messaging

import "context"

// MessageSender defines an interface for publishing engine events.
// This keeps the core package decoupled from specific transports like
// Kafka in the queue package.
type MessageSender interface {
	SendExecution(ctx context.Context, msg *ExecutionMessage) error
	SendMarketEvent(ctx context.Context, msg *MarketEventMessage) error
	Close() error
}

// Market event types.
const (
	MarketCreated   = "MARKET_CREATED"
	MarketResolved  = "MARKET_RESOLVED"
	MarketFinalized = "MARKET_FINALIZED"
	MarketFeesSwept = "MARKET_FEES_SWEPT"
)

// ExecutionMessage is the wire form of one place or take outcome.
// Quantities and Point amounts are decimal strings; ticks are rendered
// as Points per share.
type ExecutionMessage struct {
	EventID   string
	Market    uint32
	Outcome   uint16
	Side      string
	OrderID   uint64
	Filled    string
	Remaining string
	Points    string
	Rested    bool
	Trades    []TradeMessage
}

// TradeMessage is a single fill inside an execution.
type TradeMessage struct {
	MakerOrder  uint64
	Maker       uint64
	Taker       uint64
	TakerSide   string
	Price       string
	Shares      string
	SellerGross string
	BuyerCost   string
	Dust        string
	MakerFee    string
	TakerFee    string
}

// MarketEventMessage is the wire form of a market lifecycle transition.
type MarketEventMessage struct {
	EventID string
	Market  uint32
	Type    string
	Winner  uint16
	// Pending marks a resolution that is not yet finalized.
	Pending     bool
	CreatorCut  string
	ProtocolCut string
}

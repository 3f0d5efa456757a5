package core

// Side represents the ask or bid side of a book.
type Side uint8

// Book sides
const (
	Ask Side = iota
	Bid
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Ask:
		return "ASK"
	case Bid:
		return "BID"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Ask {
		return Bid
	}
	return Ask
}

// Valid reports whether the side encoding is one of the two known values.
func (s Side) Valid() bool {
	return s == Ask || s == Bid
}

// Tick is a discrete price in hundredths of one Point per share.
// Valid values are [MinTick, MaxTick].
type Tick uint8

// Valid reports whether the tick is inside the price axis.
func (t Tick) Valid() bool {
	return t >= MinTick && t <= MaxTick
}

// Identifier types. All are fixed-width and opaque; composite keys built
// from them are packed in keys.go.
type (
	UserID    uint64
	MarketID  uint32
	OutcomeID uint16
	OrderID   uint64
)

// Trade is one fill produced by a matching step. Amounts follow the
// settlement rounding rules in fees.go.
type Trade struct {
	Market     MarketID
	Outcome    OutcomeID
	MakerOrder OrderID
	Maker      UserID
	Taker      UserID
	TakerSide  Side
	Tick       Tick
	Shares     uint64
	// SellerGross is floor(shares*tick/100), paid toward the seller.
	SellerGross uint64
	// BuyerCost is ceil(shares*tick/100), charged to the buyer.
	BuyerCost uint64
	// Dust is BuyerCost-SellerGross, accrued to the protocol pool.
	Dust     uint64
	MakerFee uint64
	TakerFee uint64
}

// PlaceResult reports the outcome of a limit order placement. OrderID is
// always assigned, even when the order filled completely without resting.
type PlaceResult struct {
	OrderID OrderID
	// Filled is the total shares matched during placement.
	Filled uint64
	// PointsTraded is the principal paid by the buying side across all
	// fills, fees excluded, dust included.
	PointsTraded uint64
	// Remaining is the size left resting on the book (zero if not rested).
	Remaining uint64
	Rested    bool
	Trades    []Trade
}

// TakeResult reports the outcome of a take. Takes never rest.
type TakeResult struct {
	Filled       uint64
	PointsTraded uint64
	Trades       []Trade
}

// FeeSweep reports one idempotent sweep of a market's accrued fees.
type FeeSweep struct {
	CreatorCut  uint64
	ProtocolCut uint64
}

// LevelView is a read-only snapshot of one price level.
type LevelView struct {
	Tick  Tick
	Head  OrderID
	Tail  OrderID
	Total uint64
}

// TickDepth is one entry of a book depth snapshot.
type TickDepth struct {
	Tick   Tick
	Shares uint64
}

package core

import "errors"

// Hard limits of the engine.
const (
	// MinTick and MaxTick bound the discrete price axis, in hundredths of
	// one Point per share.
	MinTick Tick = 1
	MaxTick Tick = 99

	// MaxPrevCandidates caps the predecessor hint list accepted by Cancel.
	MaxPrevCandidates = 16

	// MaxOrderShares bounds a single request so notional arithmetic can
	// never overflow uint64.
	MaxOrderShares uint64 = 1 << 40

	// FeeDenominator is the basis-point divisor for all fee rates.
	FeeDenominator uint64 = 10_000
)

// Errors
var (
	ErrInvalidTick        = errors.New("tick out of range")
	ErrInvalidSize        = errors.New("invalid size")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidOutcome     = errors.New("invalid outcome")
	ErrInvalidFeeRate     = errors.New("invalid fee rate")
	ErrInsufficientFunds  = errors.New("insufficient free balance")
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketNotActive    = errors.New("market not active")
	ErrAlreadyResolved    = errors.New("market already resolved")
	ErrNotResolved        = errors.New("market not resolved")
	ErrAlreadyFinalized   = errors.New("market already finalized")
	ErrResolveNotAllowed  = errors.New("resolution not allowed yet")
	ErrNotResolver        = errors.New("not market resolver")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotOpen       = errors.New("order not open")
	ErrNotOrderOwner      = errors.New("not order owner")
	ErrNoValidPredecessor = errors.New("no valid predecessor candidate")
	ErrTooManyCandidates  = errors.New("too many predecessor candidates")
	ErrMinFillNotMet      = errors.New("minimum fill not met")
)

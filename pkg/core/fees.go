package core

// Settlement arithmetic. All functions are pure; every rounding direction
// here is part of the external contract and must not change:
// the seller side is floored, the buyer side and all fees are ceiled,
// and the difference accrues as dust.

// SellerGross returns floor(shares * tick / 100), the principal paid
// toward the seller before fees.
func SellerGross(shares uint64, tick Tick) uint64 {
	return shares * uint64(tick) / 100
}

// BuyerCost returns ceil(shares * tick / 100), the principal charged to
// the buyer.
func BuyerCost(shares uint64, tick Tick) uint64 {
	return (shares*uint64(tick) + 99) / 100
}

// Dust returns the rounding remainder of one fill. It is always 0 or 1
// Point and accrues to the protocol pool, never to either party.
func Dust(shares uint64, tick Tick) uint64 {
	return BuyerCost(shares, tick) - SellerGross(shares, tick)
}

// FeeOn returns ceil(gross * bps / 10000). A zero rate is fee exemption.
func FeeOn(gross uint64, bps uint32) uint64 {
	if bps == 0 {
		return 0
	}
	return (gross*uint64(bps) + FeeDenominator - 1) / FeeDenominator
}

// WorstCaseReserve returns the Points reserved up front for a buy of the
// given size at the given limit: principal at the limit tick plus the fee
// at the higher of the market's maker and taker rates, plus one Point per
// share of rounding headroom. Settlement ceils the principal and the fee
// of every fill separately, so an order split across n fills can consume
// up to n-1 extra Points over the aggregate; each fill moves at least one
// share, which the per-share term covers for any fill pattern. The order
// may also end up on either side of a fill, so the larger rate is
// reserved. Everything unconsumed is refunded at settlement. Deliberate
// over-reservation; do not tighten it.
func WorstCaseReserve(shares uint64, limit Tick, maxBps uint32) uint64 {
	return BuyerCost(shares, limit) + FeeOn(SellerGross(shares, limit), maxBps) + shares
}

func maxBps(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

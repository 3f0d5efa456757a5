package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSellerGrossAndBuyerCost(t *testing.T) {
	tests := []struct {
		name   string
		shares uint64
		tick   Tick
		gross  uint64
		cost   uint64
	}{
		{"exact division", 100, 50, 50, 50},
		{"floor and ceil split", 1, 1, 0, 1},
		{"odd shares", 3, 33, 0, 1},
		{"large fill", 1000, 99, 990, 990},
		{"single share mid price", 1, 50, 0, 1},
		{"two shares mid price", 2, 50, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.gross, SellerGross(tt.shares, tt.tick))
			assert.Equal(t, tt.cost, BuyerCost(tt.shares, tt.tick))
			assert.Equal(t, tt.cost-tt.gross, Dust(tt.shares, tt.tick))
		})
	}
}

func TestDust_AlwaysZeroOrOne(t *testing.T) {
	for tick := MinTick; tick <= MaxTick; tick++ {
		for shares := uint64(1); shares <= 200; shares++ {
			d := Dust(shares, tick)
			assert.LessOrEqual(t, d, uint64(1), "shares=%d tick=%d", shares, tick)
		}
	}
}

func TestFeeOn(t *testing.T) {
	// Zero rate means exemption, even on a non-zero gross.
	assert.Equal(t, uint64(0), FeeOn(1000, 0))

	// Zero gross never produces a fee.
	assert.Equal(t, uint64(0), FeeOn(0, 10000))

	// Fees round up.
	assert.Equal(t, uint64(1), FeeOn(50, 100))  // 0.5 -> 1
	assert.Equal(t, uint64(1), FeeOn(1, 1))     // 0.0001 -> 1
	assert.Equal(t, uint64(10), FeeOn(1000, 100))
	assert.Equal(t, uint64(1000), FeeOn(1000, 10000))
}

func TestWorstCaseReserve(t *testing.T) {
	// Principal plus ceiled fee at the higher rate plus one Point per
	// share of rounding headroom.
	assert.Equal(t, uint64(151), WorstCaseReserve(100, 50, 200))
	assert.Equal(t, uint64(150), WorstCaseReserve(100, 50, 0))

	// The dusty single-share case reserves the ceiled principal plus its
	// headroom Point.
	assert.Equal(t, uint64(2), WorstCaseReserve(1, 1, 10000))
}

func TestWorstCaseReserve_CoversSettlement(t *testing.T) {
	// The reservation must always cover cost plus fee of a full fill at
	// the limit tick.
	for _, bps := range []uint32{0, 1, 100, 250, 10000} {
		for tick := MinTick; tick <= MaxTick; tick++ {
			shares := uint64(100)
			reserve := WorstCaseReserve(shares, tick, bps)
			need := BuyerCost(shares, tick) + FeeOn(SellerGross(shares, tick), bps)
			assert.GreaterOrEqual(t, reserve, need, "tick=%d bps=%d", tick, bps)
		}
	}
}

func TestWorstCaseReserve_CoversPerFillRounding(t *testing.T) {
	// Settlement ceils the principal and the fee of every fill
	// separately, so the reservation must also cover the order filling in
	// small pieces, not just in one piece.
	for _, bps := range []uint32{0, 1, 100, 250, 10000} {
		for tick := MinTick; tick <= MaxTick; tick++ {
			for _, fill := range []uint64{1, 2, 3, 7} {
				shares := uint64(100)
				reserve := WorstCaseReserve(shares, tick, bps)

				var need uint64
				for left := shares; left > 0; {
					q := fill
					if q > left {
						q = left
					}
					need += BuyerCost(q, tick) + FeeOn(SellerGross(q, tick), bps)
					left -= q
				}
				assert.GreaterOrEqual(t, reserve, need, "tick=%d bps=%d fill=%d", tick, bps, fill)
			}
		}
	}
}

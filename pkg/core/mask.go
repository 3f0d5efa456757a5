package core

import "math/bits"

// Mask is a fixed-width bitset over the price axis of one book side.
// Bit i marks tick i+1 as non-empty. Best-price discovery is a single
// leading/trailing zero count, so matching never scans empty levels.
type Mask struct {
	Lo uint64 // ticks 1..64
	Hi uint64 // ticks 65..99
}

// Set returns the mask with the bit for tick set.
func (m Mask) Set(t Tick) Mask {
	i := uint(t - 1)
	if i < 64 {
		m.Lo |= 1 << i
	} else {
		m.Hi |= 1 << (i - 64)
	}
	return m
}

// Clear returns the mask with the bit for tick cleared.
func (m Mask) Clear(t Tick) Mask {
	i := uint(t - 1)
	if i < 64 {
		m.Lo &^= 1 << i
	} else {
		m.Hi &^= 1 << (i - 64)
	}
	return m
}

// Has reports whether the bit for tick is set.
func (m Mask) Has(t Tick) bool {
	i := uint(t - 1)
	if i < 64 {
		return m.Lo&(1<<i) != 0
	}
	return m.Hi&(1<<(i-64)) != 0
}

// Any reports whether any level is non-empty.
func (m Mask) Any() bool {
	return m.Lo != 0 || m.Hi != 0
}

// Lowest returns the lowest non-empty tick (best ask).
func (m Mask) Lowest() (Tick, bool) {
	if m.Lo != 0 {
		return Tick(bits.TrailingZeros64(m.Lo) + 1), true
	}
	if m.Hi != 0 {
		return Tick(bits.TrailingZeros64(m.Hi) + 65), true
	}
	return 0, false
}

// Highest returns the highest non-empty tick (best bid).
func (m Mask) Highest() (Tick, bool) {
	if m.Hi != 0 {
		return Tick(bits.Len64(m.Hi) + 64), true
	}
	if m.Lo != 0 {
		return Tick(bits.Len64(m.Lo)), true
	}
	return 0, false
}

// Best returns the best price for the given side: lowest tick for asks,
// highest for bids.
func (m Mask) Best(s Side) (Tick, bool) {
	if s == Ask {
		return m.Lowest()
	}
	return m.Highest()
}

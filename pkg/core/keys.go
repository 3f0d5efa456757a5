package core

import "encoding/binary"

// Composite keys for every persisted record. The packed layouts are part
// of the external contract: indexers address records by these bytes, so
// the encoding must stay stable across storage format changes.
//
//	book key:  market(4) || outcome(2) || side(1), big-endian, 7 bytes
//	level key: book(7) || tick(1)
//	order key: book(7) || orderID(8)

// ClassKey identifies one outcome share class of one market. Share
// balances are scoped to a class; both book sides of an outcome share it.
type ClassKey struct {
	Market  MarketID
	Outcome OutcomeID
}

// BookKey identifies one side of one outcome's order book.
type BookKey struct {
	Class ClassKey
	Side  Side
}

// LevelKey identifies the level record at one (book, tick).
type LevelKey struct {
	Book BookKey
	Tick Tick
}

// OrderKey identifies one order record. Order ids are allocated
// monotonically per class and never reused.
type OrderKey struct {
	Book BookKey
	ID   OrderID
}

// Bytes returns the packed book key.
func (k BookKey) Bytes() []byte {
	b := make([]byte, 7)
	binary.BigEndian.PutUint32(b[0:4], uint32(k.Class.Market))
	binary.BigEndian.PutUint16(b[4:6], uint16(k.Class.Outcome))
	b[6] = byte(k.Side)
	return b
}

// Bytes returns the packed level key.
func (k LevelKey) Bytes() []byte {
	return append(k.Book.Bytes(), byte(k.Tick))
}

// Bytes returns the packed order key.
func (k OrderKey) Bytes() []byte {
	b := make([]byte, 7+8)
	copy(b, k.Book.Bytes())
	binary.BigEndian.PutUint64(b[7:], uint64(k.ID))
	return b
}

// BookKeyFromBytes unpacks a book key produced by BookKey.Bytes.
func BookKeyFromBytes(b []byte) (BookKey, bool) {
	if len(b) != 7 {
		return BookKey{}, false
	}
	k := BookKey{
		Class: ClassKey{
			Market:  MarketID(binary.BigEndian.Uint32(b[0:4])),
			Outcome: OutcomeID(binary.BigEndian.Uint16(b[4:6])),
		},
		Side: Side(b[6]),
	}
	if !k.Side.Valid() {
		return BookKey{}, false
	}
	return k, true
}

package core

// Store is the persisted-state interface of the engine. Every record is
// independently addressable by its composite key (keys.go); backends must
// preserve that key scheme since external indexers rely on it.
//
// Readers return the zero value (or nil for orders/markets) when a record
// is absent; writers replace the record wholesale. The engine is the only
// writer and serializes all operations, so backends need no transactional
// guarantees beyond per-call atomicity.
type Store interface {
	Meta() EngineMeta
	PutMeta(meta EngineMeta)

	Market(id MarketID) *Market
	PutMarket(m *Market)

	Book(class ClassKey) BookState
	PutBook(class ClassKey, book BookState)

	Level(key LevelKey) Level
	PutLevel(key LevelKey, level Level)

	Order(key OrderKey) *Order
	PutOrder(key OrderKey, order *Order)

	Points(user UserID) Balance
	PutPoints(user UserID, bal Balance)

	Shares(user UserID, class ClassKey) Balance
	PutShares(user UserID, class ClassKey, bal Balance)
}

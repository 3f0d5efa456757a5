package core

import "fmt"

// Balance is a free/reserved pair of one balance kind. Both components
// are always non-negative; a unit of value is never counted in both.
type Balance struct {
	Free     uint64
	Reserved uint64
}

// Total returns free + reserved.
func (b Balance) Total() uint64 {
	return b.Free + b.Reserved
}

// reserve moves amount from free to reserved. The only ledger transition
// that can fail on user input: everything downstream of a successful
// reservation operates on reserved value the ledger already holds.
func (b *Balance) reserve(amount uint64) error {
	if b.Free < amount {
		return ErrInsufficientFunds
	}
	b.Free -= amount
	b.Reserved += amount
	return nil
}

// release moves amount from reserved back to free. A shortfall here means
// the engine lost track of a reservation; that is unrecoverable.
func (b *Balance) release(amount uint64) {
	if b.Reserved < amount {
		panic(fmt.Sprintf("ledger: release %d exceeds reserved %d", amount, b.Reserved))
	}
	b.Reserved -= amount
	b.Free += amount
}

// consume removes amount from reserved permanently (settlement).
func (b *Balance) consume(amount uint64) {
	if b.Reserved < amount {
		panic(fmt.Sprintf("ledger: consume %d exceeds reserved %d", amount, b.Reserved))
	}
	b.Reserved -= amount
}

// Custody bridge and internal ledger operations. Points balances are per
// user; share balances are per (user, class).

// CreditFreePoints adds deposited Points to a user's free balance.
func (e *Engine) CreditFreePoints(user UserID, amount uint64) {
	bal := e.store.Points(user)
	bal.Free += amount
	e.store.PutPoints(user, bal)
}

// DebitFreePoints removes withdrawn Points from a user's free balance.
func (e *Engine) DebitFreePoints(user UserID, amount uint64) error {
	bal := e.store.Points(user)
	if bal.Free < amount {
		return ErrInsufficientFunds
	}
	bal.Free -= amount
	e.store.PutPoints(user, bal)
	return nil
}

// CreditFreeShares adds shares of one class to a user's free balance.
func (e *Engine) CreditFreeShares(user UserID, class ClassKey, amount uint64) {
	bal := e.store.Shares(user, class)
	bal.Free += amount
	e.store.PutShares(user, class, bal)
}

// DebitFreeShares removes shares of one class from a user's free balance.
func (e *Engine) DebitFreeShares(user UserID, class ClassKey, amount uint64) error {
	bal := e.store.Shares(user, class)
	if bal.Free < amount {
		return ErrInsufficientFunds
	}
	bal.Free -= amount
	e.store.PutShares(user, class, bal)
	return nil
}

// PointsBalance returns a user's Points balance.
func (e *Engine) PointsBalance(user UserID) Balance {
	return e.store.Points(user)
}

// ShareBalance returns a user's balance of one share class.
func (e *Engine) ShareBalance(user UserID, class ClassKey) Balance {
	return e.store.Shares(user, class)
}

// DustPool returns the protocol-wide accrued dust.
func (e *Engine) DustPool() uint64 {
	return e.store.Meta().Dust
}

func (e *Engine) reservePoints(user UserID, amount uint64) error {
	bal := e.store.Points(user)
	if err := bal.reserve(amount); err != nil {
		return err
	}
	e.store.PutPoints(user, bal)
	return nil
}

func (e *Engine) releasePoints(user UserID, amount uint64) {
	if amount == 0 {
		return
	}
	bal := e.store.Points(user)
	bal.release(amount)
	e.store.PutPoints(user, bal)
}

func (e *Engine) consumePoints(user UserID, amount uint64) {
	if amount == 0 {
		return
	}
	bal := e.store.Points(user)
	bal.consume(amount)
	e.store.PutPoints(user, bal)
}

func (e *Engine) creditPoints(user UserID, amount uint64) {
	if amount == 0 {
		return
	}
	bal := e.store.Points(user)
	bal.Free += amount
	e.store.PutPoints(user, bal)
}

func (e *Engine) reserveShares(user UserID, class ClassKey, amount uint64) error {
	bal := e.store.Shares(user, class)
	if err := bal.reserve(amount); err != nil {
		return err
	}
	e.store.PutShares(user, class, bal)
	return nil
}

func (e *Engine) releaseShares(user UserID, class ClassKey, amount uint64) {
	if amount == 0 {
		return
	}
	bal := e.store.Shares(user, class)
	bal.release(amount)
	e.store.PutShares(user, class, bal)
}

func (e *Engine) consumeShares(user UserID, class ClassKey, amount uint64) {
	if amount == 0 {
		return
	}
	bal := e.store.Shares(user, class)
	bal.consume(amount)
	e.store.PutShares(user, class, bal)
}

func (e *Engine) creditShares(user UserID, class ClassKey, amount uint64) {
	if amount == 0 {
		return
	}
	bal := e.store.Shares(user, class)
	bal.Free += amount
	e.store.PutShares(user, class, bal)
}

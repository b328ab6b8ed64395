// Package ledger records how much of each order has been filled and whether
// its maker cancelled or pre-approved it.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

var (
	ErrNotListed       = errors.New("order not yet listed")
	ErrExpired         = errors.New("order expired")
	ErrCancelled       = errors.New("order cancelled")
	ErrFillExceeded    = errors.New("fill exceeds order maximum")
	ErrFilled          = fmt.Errorf("order completely filled: %w", ErrFillExceeded)
	ErrFillDecrease    = errors.New("order fill can only increase")
	ErrAlreadyApproved = errors.New("order already approved")
	ErrInvalidAmount   = errors.New("fill amount must be positive")
)

// Record is the persistent state of one order
type Record struct {
	Filled    *big.Int
	Cancelled bool
	Approved  bool
}

// Ledger keeps order records for one exchange. Records are keyed by
// (maker, fingerprint), created lazily and never deleted.
type Ledger struct {
	exchange common.Address
}

// New creates the ledger of the exchange at address
func New(exchange common.Address) *Ledger {
	return &Ledger{exchange: exchange}
}

func (l *Ledger) key(kind string, maker common.Address, hash common.Hash) []byte {
	return state.Key("ledger/"+kind, l.exchange.Bytes(), maker.Bytes(), hash.Bytes())
}

// Get returns the record of an order; unknown orders read as zero
func (l *Ledger) Get(kv state.KV, maker common.Address, hash common.Hash) (Record, error) {
	filled, err := state.GetBig(kv, l.key("fill", maker, hash))
	if err != nil {
		return Record{}, err
	}
	cancelled, err := state.GetBool(kv, l.key("cancelled", maker, hash))
	if err != nil {
		return Record{}, err
	}
	approved, err := state.GetBool(kv, l.key("approved", maker, hash))
	if err != nil {
		return Record{}, err
	}
	return Record{Filled: filled, Cancelled: cancelled, Approved: approved}, nil
}

// Filled returns the cumulative fill of an order
func (l *Ledger) Filled(kv state.KV, maker common.Address, hash common.Hash) (*big.Int, error) {
	return state.GetBig(kv, l.key("fill", maker, hash))
}

// Validate checks the order's validity window at now (unix seconds) and its record.
// An expiration time of zero never expires.
func (l *Ledger) Validate(kv state.KV, order *chain.Order, hash common.Hash, now uint64) error {
	if order.ListingTime > now {
		return ErrNotListed
	}
	if order.ExpirationTime != 0 && now >= order.ExpirationTime {
		return ErrExpired
	}
	rec, err := l.Get(kv, order.Maker, hash)
	if err != nil {
		return err
	}
	if rec.Cancelled {
		return ErrCancelled
	}
	if order.MaximumFill == nil || rec.Filled.Cmp(order.MaximumFill) >= 0 {
		return ErrFilled
	}
	return nil
}

// RecordFill adds amount to the order's fill and returns the new total.
// It fails with ErrFillExceeded when the total would pass max.
func (l *Ledger) RecordFill(kv state.KV, maker common.Address, hash common.Hash, amount, max *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	key := l.key("fill", maker, hash)
	current, err := state.GetBig(kv, key)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(current, amount)
	if max == nil || total.Cmp(max) > 0 {
		return nil, fmt.Errorf("%w: %s + %s > %v", ErrFillExceeded, current, amount, max)
	}
	state.SetBig(kv, key, total)
	return total, nil
}

// SetFill raises the order's fill to fill. Fills never decrease.
func (l *Ledger) SetFill(kv state.KV, maker common.Address, hash common.Hash, fill *big.Int) error {
	if fill == nil || fill.Sign() < 0 {
		return ErrInvalidAmount
	}
	key := l.key("fill", maker, hash)
	current, err := state.GetBig(kv, key)
	if err != nil {
		return err
	}
	if fill.Cmp(current) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrFillDecrease, fill, current)
	}
	state.SetBig(kv, key, fill)
	return nil
}

// Cancel marks the order cancelled. Cancelling twice is a no-op.
func (l *Ledger) Cancel(kv state.KV, maker common.Address, hash common.Hash) {
	state.SetBool(kv, l.key("cancelled", maker, hash), true)
}

// Approve records the maker's on-ledger approval of a fingerprint
func (l *Ledger) Approve(kv state.KV, maker common.Address, hash common.Hash) error {
	key := l.key("approved", maker, hash)
	approved, err := state.GetBool(kv, key)
	if err != nil {
		return err
	}
	if approved {
		return ErrAlreadyApproved
	}
	state.SetBool(kv, key, true)
	return nil
}

// IsApproved reports whether maker pre-approved the fingerprint
func (l *Ledger) IsApproved(kv state.KV, maker common.Address, hash common.Hash) (bool, error) {
	return state.GetBool(kv, l.key("approved", maker, hash))
}

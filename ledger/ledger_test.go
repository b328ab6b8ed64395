package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

var (
	maker = common.HexToAddress("0xa11ce")
	hash  = common.HexToHash("0x01")
)

func newTx() *state.Tx {
	return state.Begin(context.Background(), state.NewMemDB())
}

func order(listing, expiration uint64, max int64) *chain.Order {
	return &chain.Order{
		Maker:          maker,
		MaximumFill:    big.NewInt(max),
		ListingTime:    listing,
		ExpirationTime: expiration,
		Salt:           big.NewInt(1),
	}
}

func TestValidateWindow(t *testing.T) {
	l := New(common.HexToAddress("0xec"))
	tx := newTx()

	assert.NoError(t, l.Validate(tx, order(100, 200, 1), hash, 100))
	assert.NoError(t, l.Validate(tx, order(100, 200, 1), hash, 199))
	assert.ErrorIs(t, l.Validate(tx, order(100, 200, 1), hash, 99), ErrNotListed)
	assert.ErrorIs(t, l.Validate(tx, order(100, 200, 1), hash, 200), ErrExpired)
	assert.NoError(t, l.Validate(tx, order(0, 0, 1), hash, 1<<40))
}

func TestRecordFillEnforcesMaximum(t *testing.T) {
	l := New(common.HexToAddress("0xec"))
	tx := newTx()
	max := big.NewInt(5)

	total, err := l.RecordFill(tx, maker, hash, big.NewInt(1), max)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total.Int64())

	total, err = l.RecordFill(tx, maker, hash, big.NewInt(4), max)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total.Int64())

	_, err = l.RecordFill(tx, maker, hash, big.NewInt(1), max)
	assert.ErrorIs(t, err, ErrFillExceeded)

	filled, err := l.Filled(tx, maker, hash)
	require.NoError(t, err)
	assert.Equal(t, int64(5), filled.Int64())

	assert.ErrorIs(t, l.Validate(tx, order(0, 0, 5), hash, 1), ErrFilled)
	assert.ErrorIs(t, l.Validate(tx, order(0, 0, 5), hash, 1), ErrFillExceeded)

	_, err = l.RecordFill(tx, maker, hash, big.NewInt(0), max)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRecordsAreScoped(t *testing.T) {
	a := New(common.HexToAddress("0xea"))
	b := New(common.HexToAddress("0xeb"))
	tx := newTx()

	_, err := a.RecordFill(tx, maker, hash, big.NewInt(3), big.NewInt(10))
	require.NoError(t, err)

	filled, err := b.Filled(tx, maker, hash)
	require.NoError(t, err)
	assert.Zero(t, filled.Sign())

	filled, err = a.Filled(tx, common.HexToAddress("0xb0b"), hash)
	require.NoError(t, err)
	assert.Zero(t, filled.Sign())
}

func TestCancelIsTerminalAndIdempotent(t *testing.T) {
	l := New(common.HexToAddress("0xec"))
	tx := newTx()

	l.Cancel(tx, maker, hash)
	l.Cancel(tx, maker, hash)
	assert.ErrorIs(t, l.Validate(tx, order(0, 0, 1), hash, 1), ErrCancelled)

	rec, err := l.Get(tx, maker, hash)
	require.NoError(t, err)
	assert.True(t, rec.Cancelled)
	assert.Zero(t, rec.Filled.Sign())
}

func TestSetFillIsMonotonic(t *testing.T) {
	l := New(common.HexToAddress("0xec"))
	tx := newTx()

	require.NoError(t, l.SetFill(tx, maker, hash, big.NewInt(7)))
	assert.ErrorIs(t, l.SetFill(tx, maker, hash, big.NewInt(6)), ErrFillDecrease)
	require.NoError(t, l.SetFill(tx, maker, hash, big.NewInt(7)))

	filled, err := l.Filled(tx, maker, hash)
	require.NoError(t, err)
	assert.Equal(t, int64(7), filled.Int64())
}

func TestApprove(t *testing.T) {
	l := New(common.HexToAddress("0xec"))
	tx := newTx()

	ok, err := l.IsApproved(tx, maker, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Approve(tx, maker, hash))
	assert.ErrorIs(t, l.Approve(tx, maker, hash), ErrAlreadyApproved)

	ok, err = l.IsApproved(tx, maker, hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

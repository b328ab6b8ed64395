package state

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	*TMDB
	applied [][]Write
	err     error
}

func (f *failingBackend) Apply(ctx context.Context, writes []Write) error {
	f.applied = append(f.applied, writes)
	if f.err != nil {
		return f.err
	}
	return f.TMDB.Apply(ctx, writes)
}

func TestTxReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	backend := NewMemDB()
	defer backend.Close()

	require.NoError(t, backend.Apply(ctx, []Write{{Key: []byte("a"), Value: []byte("1")}}))

	tx := Begin(ctx, backend)
	v, err := tx.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	tx.Set([]byte("a"), []byte("2"))
	tx.Set([]byte("b"), []byte("3"))
	tx.Delete([]byte("c"))

	v, err = tx.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	v, err = tx.Get([]byte("c"))
	require.NoError(t, err)
	assert.Nil(t, v)

	// backend untouched until commit
	v, err = backend.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, tx.Commit())

	v, err = backend.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
	v, err = backend.Get(ctx, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)
}

func TestTxDiscardDropsWrites(t *testing.T) {
	ctx := context.Background()
	backend := NewMemDB()

	tx := Begin(ctx, backend)
	tx.Set([]byte("a"), []byte("1"))
	tx.Discard()

	v, err := backend.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.ErrorIs(t, tx.Commit(), ErrTxClosed)
	_, err = tx.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrTxClosed)
}

func TestTxCommitIsSingleSortedApply(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{TMDB: NewMemDB()}

	tx := Begin(ctx, backend)
	tx.Set([]byte("c"), []byte("3"))
	tx.Set([]byte("a"), []byte("1"))
	tx.Delete([]byte("b"))
	require.NoError(t, tx.Commit())

	require.Len(t, backend.applied, 1)
	writes := backend.applied[0]
	require.Len(t, writes, 3)
	assert.Equal(t, "a", string(writes[0].Key))
	assert.Equal(t, "b", string(writes[1].Key))
	assert.True(t, writes[1].Delete())
	assert.Equal(t, "c", string(writes[2].Key))
}

func TestTxCommitSurfacesBackendError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	backend := &failingBackend{TMDB: NewMemDB(), err: boom}

	tx := Begin(ctx, backend)
	tx.Set([]byte("a"), []byte("1"))
	assert.ErrorIs(t, tx.Commit(), boom)

	v, err := backend.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTxEmptyCommitSkipsBackend(t *testing.T) {
	backend := &failingBackend{TMDB: NewMemDB()}
	require.NoError(t, Begin(context.Background(), backend).Commit())
	assert.Empty(t, backend.applied)
}

func TestCodec(t *testing.T) {
	tx := Begin(context.Background(), NewMemDB())
	key := Key("fill", common.HexToAddress("0x01").Bytes(), []byte{0xaa})
	assert.Equal(t, "fill/", string(key[:5]))
	assert.Len(t, key, len("fill")+1+20+1+1)

	n, err := GetBig(tx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, n.Sign())

	SetBig(tx, key, big.NewInt(1234))
	n, err = GetBig(tx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n.Int64())

	SetBig(tx, key, new(big.Int))
	raw, err := tx.Get(key)
	require.NoError(t, err)
	assert.Nil(t, raw)

	flag := Key("flag")
	ok, err := GetBool(tx, flag)
	require.NoError(t, err)
	assert.False(t, ok)
	SetBool(tx, flag, true)
	ok, err = GetBool(tx, flag)
	require.NoError(t, err)
	assert.True(t, ok)

	addrKey := Key("owner")
	addr := common.HexToAddress("0xbeef")
	SetAddress(tx, addrKey, addr)
	got, err := GetAddress(tx, addrKey)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	nonce := Key("nonce")
	SetUint64(tx, nonce, 7)
	u, err := GetUint64(tx, nonce)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u)
}

func TestGoLevelDBPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := OpenGoLevelDB("state", dir)
	require.NoError(t, err)
	tx := Begin(ctx, db)
	tx.Set([]byte("k"), []byte("v"))
	require.NoError(t, tx.Commit())
	require.NoError(t, db.Close())

	db, err = OpenGoLevelDB("state", dir)
	require.NoError(t, err)
	defer db.Close()
	v, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestTxRevertToSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := NewMemDB()
	require.NoError(t, backend.Apply(ctx, []Write{{Key: []byte("a"), Value: []byte("0")}}))

	tx := Begin(ctx, backend)
	tx.Set([]byte("a"), []byte("1"))
	snap := tx.Snapshot()
	tx.Set([]byte("a"), []byte("2"))
	tx.Set([]byte("b"), []byte("x"))
	tx.Delete([]byte("a"))

	tx.RevertToSnapshot(snap)

	v, err := tx.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	v, err = tx.Get([]byte("b"))
	require.NoError(t, err)
	assert.Nil(t, v)

	tx.RevertToSnapshot(0)
	v, err = tx.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("0"), v)
	assert.Zero(t, tx.Pending())
}

package redisdb

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/wyvern-exchange-go/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("WYVERN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WYVERN_TEST_REDIS_ADDR not set")
	}
	store, err := Open(context.Background(), addr, "wyvern-test-"+uuid.NewString()+"/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestApplyAndGet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	v, err := store.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)

	tx := state.Begin(ctx, store)
	tx.Set([]byte("a"), []byte("1"))
	tx.Set([]byte("b"), []byte("2"))
	require.NoError(t, tx.Commit())

	require.NoError(t, store.Apply(ctx, []state.Write{{Key: []byte("b")}}))

	v, err = store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	v, err = store.Get(ctx, []byte("b"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestApplyRejectsEmptyKey(t *testing.T) {
	store := New(nil, "")
	err := store.Apply(context.Background(), []state.Write{{Value: []byte("x")}})
	assert.ErrorIs(t, err, state.ErrEmptyKey)
}

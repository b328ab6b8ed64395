package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/wyvern-exchange-go/state"
)

var errBoom = errors.New("boom")

// counter increments a per-caller counter; payload "fail" makes it fail after writing.
type counter struct{}

func (counter) Call(c *Context, caller common.Address, payload []byte) ([]byte, error) {
	key := state.Key("count", caller.Bytes())
	n, err := state.GetUint64(c.KV(), key)
	if err != nil {
		return nil, err
	}
	state.SetUint64(c.KV(), key, n+1)
	if string(payload) == "fail" {
		return nil, errBoom
	}
	return []byte{byte(n + 1)}, nil
}

func (counter) DelegateCall(c *Context, self common.Address, payload []byte) ([]byte, error) {
	return counter{}.Call(c, self, payload)
}

type plain struct{}

func (plain) Call(*Context, common.Address, []byte) ([]byte, error) { return nil, nil }

// recurse calls itself until the depth limit trips
type recurse struct{ self common.Address }

func (r *recurse) Call(c *Context, _ common.Address, payload []byte) ([]byte, error) {
	return c.Call(r.self, r.self, payload)
}

func newTestHost(t *testing.T) (*Host, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0))
	h := New(state.NewMemDB(), WithClock(mock))
	return h, mock
}

func count(t *testing.T, h *Host, addr common.Address) uint64 {
	t.Helper()
	var n uint64
	require.NoError(t, h.View(context.Background(), func(c *Context) error {
		var err error
		n, err = state.GetUint64(c.KV(), state.Key("count", addr.Bytes()))
		return err
	}))
	return n
}

func TestDeployAddressesAreDeterministic(t *testing.T) {
	h1, _ := newTestHost(t)
	h2, _ := newTestHost(t)

	a1 := h1.Deploy(counter{})
	b1 := h1.Reserve()
	a2 := h2.Deploy(counter{})
	b2 := h2.Reserve()

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.NotEqual(t, a1, b1)

	_, ok := h1.ContractAt(b1)
	assert.False(t, ok)
	require.NoError(t, h1.Install(b1, plain{}))
	assert.ErrorIs(t, h1.Install(b1, plain{}), ErrAddressInUse)
}

func TestExecuteCommitsOnSuccess(t *testing.T) {
	h, _ := newTestHost(t)
	target := h.Deploy(counter{})
	alice := common.HexToAddress("0xa11ce")

	err := h.Execute(context.Background(), alice, func(c *Context) error {
		assert.Equal(t, alice, c.Sender())
		_, err := c.Call(alice, target, nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count(t, h, alice))
}

func TestExecuteDiscardsOnError(t *testing.T) {
	h, _ := newTestHost(t)
	target := h.Deploy(counter{})
	alice := common.HexToAddress("0xa11ce")

	err := h.Execute(context.Background(), alice, func(c *Context) error {
		if _, err := c.Call(alice, target, nil); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, count(t, h, alice))
}

func TestFailedCallRevertsOnlyItsOwnWrites(t *testing.T) {
	h, _ := newTestHost(t)
	target := h.Deploy(counter{})
	alice := common.HexToAddress("0xa11ce")
	bob := common.HexToAddress("0xb0b")

	err := h.Execute(context.Background(), alice, func(c *Context) error {
		_, err := c.Call(alice, target, nil)
		require.NoError(t, err)
		_, err = c.Call(bob, target, []byte("fail"))
		assert.ErrorIs(t, err, errBoom)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count(t, h, alice))
	assert.Zero(t, count(t, h, bob))
}

func TestCallErrors(t *testing.T) {
	h, _ := newTestHost(t)
	p := h.Deploy(plain{})
	loop := &recurse{}
	loop.self = h.Deploy(loop)

	err := h.Execute(context.Background(), common.Address{}, func(c *Context) error {
		_, err := c.Call(common.Address{}, common.HexToAddress("0xdead"), nil)
		assert.ErrorIs(t, err, ErrNoContract)

		_, err = c.DelegateCall(common.Address{}, p, nil)
		assert.ErrorIs(t, err, ErrNotDelegateTarget)

		_, err = c.Call(common.Address{}, loop.self, nil)
		assert.ErrorIs(t, err, ErrCallDepth)
		return nil
	})
	require.NoError(t, err)
}

func TestDelegateCallRunsAsSelf(t *testing.T) {
	h, _ := newTestHost(t)
	target := h.Deploy(counter{})
	proxy := common.HexToAddress("0x9409")

	require.NoError(t, h.Execute(context.Background(), common.Address{}, func(c *Context) error {
		_, err := c.DelegateCall(proxy, target, nil)
		return err
	}))
	assert.Equal(t, uint64(1), count(t, h, proxy))
}

func TestContextTimeFollowsClock(t *testing.T) {
	h, mock := newTestHost(t)

	var first, second uint64
	require.NoError(t, h.View(context.Background(), func(c *Context) error {
		first = c.Now()
		return nil
	}))
	mock.Add(time.Hour)
	require.NoError(t, h.View(context.Background(), func(c *Context) error {
		second = c.Now()
		return nil
	}))

	assert.Equal(t, uint64(1_700_000_000), first)
	assert.Equal(t, first+3600, second)
}

func TestViewDiscardsWrites(t *testing.T) {
	h, _ := newTestHost(t)
	target := h.Deploy(counter{})
	alice := common.HexToAddress("0xa11ce")

	require.NoError(t, h.View(context.Background(), func(c *Context) error {
		_, err := c.Call(alice, target, nil)
		return err
	}))
	assert.Zero(t, count(t, h, alice))
}

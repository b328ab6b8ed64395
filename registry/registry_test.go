package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

var (
	owner    = common.HexToAddress("0x0e")
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	exchange = common.HexToAddress("0xec")
)

// recorder stores the last caller; payload "fail" rejects
type recorder struct{}

func (recorder) Call(c *host.Context, caller common.Address, payload []byte) ([]byte, error) {
	if string(payload) == "fail" {
		return nil, errors.New("rejected")
	}
	state.SetAddress(c.KV(), state.Key("last"), caller)
	return nil, nil
}

func (r recorder) DelegateCall(c *host.Context, self common.Address, payload []byte) ([]byte, error) {
	return r.Call(c, self, payload)
}

type fixture struct {
	h      *host.Host
	clock  *clock.Mock
	reg    *Registry
	target common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0))
	h := host.New(state.NewMemDB(), host.WithClock(mock))
	return &fixture{
		h:      h,
		clock:  mock,
		reg:    New(h.Reserve(), owner),
		target: h.Deploy(recorder{}),
	}
}

func (f *fixture) exec(t *testing.T, sender common.Address, fn func(c *host.Context) error) error {
	t.Helper()
	return f.h.Execute(context.Background(), sender, fn)
}

func (f *fixture) register(t *testing.T, account common.Address) *Proxy {
	t.Helper()
	var p *Proxy
	require.NoError(t, f.exec(t, account, func(c *host.Context) error {
		var err error
		p, err = f.reg.RegisterProxy(c)
		return err
	}))
	return p
}

func (f *fixture) last(t *testing.T) common.Address {
	t.Helper()
	var addr common.Address
	require.NoError(t, f.h.View(context.Background(), func(c *host.Context) error {
		var err error
		addr, err = state.GetAddress(c.KV(), state.Key("last"))
		return err
	}))
	return addr
}

func TestRegisterProxyOncePerAccount(t *testing.T) {
	f := newFixture(t)
	pa := f.register(t, alice)
	pb := f.register(t, bob)
	assert.NotEqual(t, pa.Address, pb.Address)

	err := f.exec(t, alice, func(c *host.Context) error {
		_, err := f.reg.RegisterProxy(c)
		return err
	})
	assert.ErrorIs(t, err, ErrProxyExists)

	err = f.exec(t, bob, func(c *host.Context) error {
		_, err := f.reg.RegisterProxyFor(c, alice)
		return err
	})
	assert.ErrorIs(t, err, ErrProxyExists)

	require.NoError(t, f.h.View(context.Background(), func(c *host.Context) error {
		addr, err := f.reg.ProxyOf(c, alice)
		require.NoError(t, err)
		assert.Equal(t, pa.Address, addr)

		acct, err := f.reg.OwnerOf(c, pa.Address)
		require.NoError(t, err)
		assert.Equal(t, alice, acct)

		_, err = f.reg.Proxy(c, exchange)
		assert.ErrorIs(t, err, ErrProxyNotFound)
		return nil
	}))
}

func TestOwnerCanAlwaysUseProxy(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)

	require.NoError(t, f.exec(t, alice, func(c *host.Context) error {
		_, err := p.Execute(c, alice, chain.Call{Target: f.target})
		return err
	}))
	assert.Equal(t, p.Address, f.last(t))
}

func TestUnauthorizedCallerRejected(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)

	err := f.exec(t, bob, func(c *host.Context) error {
		_, err := p.Execute(c, bob, chain.Call{Target: f.target})
		return err
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestExplicitGrantAndRevoke(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)

	require.NoError(t, f.exec(t, alice, func(c *host.Context) error {
		return f.reg.GrantAuthentication(c, bob)
	}))
	require.NoError(t, f.exec(t, bob, func(c *host.Context) error {
		_, err := p.Execute(c, bob, chain.Call{Target: f.target})
		return err
	}))

	require.NoError(t, f.exec(t, alice, func(c *host.Context) error {
		return f.reg.RevokeAuthentication(c, bob)
	}))
	err := f.exec(t, bob, func(c *host.Context) error {
		_, err := p.Execute(c, bob, chain.Call{Target: f.target})
		return err
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGrantRequiresOwnProxy(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, bob, func(c *host.Context) error {
		return f.reg.GrantAuthentication(c, exchange)
	})
	assert.ErrorIs(t, err, ErrProxyNotFound)
}

func TestInitialAuthentication(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)

	err := f.exec(t, alice, func(c *host.Context) error {
		return f.reg.GrantInitialAuthentication(c, exchange)
	})
	assert.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		return f.reg.GrantInitialAuthentication(c, exchange)
	}))
	err = f.exec(t, owner, func(c *host.Context) error {
		return f.reg.GrantInitialAuthentication(c, bob)
	})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	require.NoError(t, f.exec(t, exchange, func(c *host.Context) error {
		_, err := p.Execute(c, exchange, chain.Call{Target: f.target})
		return err
	}))

	// account-level revocation overrides the blanket grant
	require.NoError(t, f.exec(t, alice, func(c *host.Context) error {
		return f.reg.RevokeAuthentication(c, exchange)
	}))
	err = f.exec(t, exchange, func(c *host.Context) error {
		_, err := p.Execute(c, exchange, chain.Call{Target: f.target})
		return err
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.exec(t, alice, func(c *host.Context) error {
		return f.reg.GrantAuthentication(c, exchange)
	}))
	require.NoError(t, f.exec(t, exchange, func(c *host.Context) error {
		_, err := p.Execute(c, exchange, chain.Call{Target: f.target})
		return err
	}))
}

func TestSetRevokeOptsOutOfBlanketGrants(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)
	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		return f.reg.GrantInitialAuthentication(c, exchange)
	}))
	require.NoError(t, f.exec(t, alice, func(c *host.Context) error {
		return f.reg.SetRevoke(c, true)
	}))

	err := f.exec(t, exchange, func(c *host.Context) error {
		_, err := p.Execute(c, exchange, chain.Call{Target: f.target})
		return err
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDelayedGrant(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)

	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		return f.reg.StartGrantAuthentication(c, bob)
	}))
	err := f.exec(t, owner, func(c *host.Context) error {
		return f.reg.StartGrantAuthentication(c, bob)
	})
	assert.ErrorIs(t, err, ErrGrantPending)

	err = f.exec(t, owner, func(c *host.Context) error {
		return f.reg.EndGrantAuthentication(c, bob)
	})
	assert.ErrorIs(t, err, ErrGrantNotReady)

	f.clock.Add(DefaultAuthenticationDelay + time.Second)
	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		return f.reg.EndGrantAuthentication(c, bob)
	}))
	require.NoError(t, f.exec(t, bob, func(c *host.Context) error {
		_, err := p.Execute(c, bob, chain.Call{Target: f.target})
		return err
	}))

	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		return f.reg.RevokeGlobalAuthentication(c, bob)
	}))
	err = f.exec(t, bob, func(c *host.Context) error {
		_, err := p.Execute(c, bob, chain.Call{Target: f.target})
		return err
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.exec(t, owner, func(c *host.Context) error {
		return f.reg.EndGrantAuthentication(c, bob)
	})
	assert.ErrorIs(t, err, ErrNoPendingGrant)
}

func TestDelegateCallRequiresVettedTarget(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)
	call := chain.Call{Target: f.target, HowToCall: chain.HowToCallDelegateCall}

	err := f.exec(t, alice, func(c *host.Context) error {
		_, err := p.Execute(c, alice, call)
		return err
	})
	assert.ErrorIs(t, err, ErrDelegateNotAllowed)

	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		return f.reg.AllowDelegateTarget(c, f.target, true)
	}))
	require.NoError(t, f.exec(t, alice, func(c *host.Context) error {
		_, err := p.Execute(c, alice, call)
		return err
	}))
	assert.Equal(t, p.Address, f.last(t))
}

func TestUnderlyingFailureWrapped(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, alice)

	err := f.exec(t, alice, func(c *host.Context) error {
		_, err := p.Execute(c, alice, chain.Call{Target: f.target, Data: []byte("fail")})
		return err
	})
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.Contains(t, err.Error(), "rejected")

	err = f.exec(t, alice, func(c *host.Context) error {
		_, err := p.Execute(c, alice, chain.Call{Target: common.HexToAddress("0xdead")})
		return err
	})
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.ErrorIs(t, err, host.ErrNoContract)
}

func TestDelayedGrantStartedAtGenesis(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Unix(0, 0))

	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		require.Zero(t, c.Now())
		return f.reg.StartGrantAuthentication(c, bob)
	}))
	err := f.exec(t, owner, func(c *host.Context) error {
		return f.reg.StartGrantAuthentication(c, bob)
	})
	assert.ErrorIs(t, err, ErrGrantPending)

	f.clock.Add(DefaultAuthenticationDelay + time.Second)
	require.NoError(t, f.exec(t, owner, func(c *host.Context) error {
		return f.reg.EndGrantAuthentication(c, bob)
	}))
	require.NoError(t, f.h.View(context.Background(), func(c *host.Context) error {
		authed, err := f.reg.Authenticated(c, bob)
		assert.True(t, authed)
		return err
	}))
}

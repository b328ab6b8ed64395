// Package registry maintains one proxy per account and the set of callers
// allowed to act through those proxies.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

// DefaultAuthenticationDelay is the wait between starting and finishing a blanket grant
const DefaultAuthenticationDelay = 14 * 24 * time.Hour

var (
	ErrProxyExists          = errors.New("registry: account already has a proxy")
	ErrProxyNotFound        = errors.New("registry: account has no proxy")
	ErrNotOwner             = errors.New("registry: caller is not the registry owner")
	ErrAlreadyInitialized   = errors.New("registry: initial authentication already granted")
	ErrAlreadyAuthenticated = errors.New("registry: address already authenticated")
	ErrGrantPending         = errors.New("registry: authentication already pending")
	ErrNoPendingGrant       = errors.New("registry: no pending authentication")
	ErrGrantNotReady        = errors.New("registry: authentication delay has not passed")
	ErrZeroAddress          = errors.New("registry: zero address")
)

// Registry maps accounts to proxies. All state lives in the host ledger under
// the registry's address.
type Registry struct {
	address common.Address
	owner   common.Address
	delay   time.Duration
}

// Option configures a Registry
type Option func(*Registry)

// WithAuthenticationDelay overrides DefaultAuthenticationDelay
func WithAuthenticationDelay(d time.Duration) Option {
	return func(r *Registry) {
		r.delay = d
	}
}

// New creates a registry living at address and administered by owner
func New(address, owner common.Address, opts ...Option) *Registry {
	r := &Registry{
		address: address,
		owner:   owner,
		delay:   DefaultAuthenticationDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the registry address
func (r *Registry) Address() common.Address {
	return r.address
}

// Owner returns the registry administrator
func (r *Registry) Owner() common.Address {
	return r.owner
}

// Delay returns the blanket authentication delay
func (r *Registry) Delay() time.Duration {
	return r.delay
}

func (r *Registry) key(kind string, parts ...common.Address) []byte {
	raw := make([][]byte, 0, len(parts)+1)
	raw = append(raw, r.address.Bytes())
	for _, p := range parts {
		raw = append(raw, p.Bytes())
	}
	return state.Key("registry/"+kind, raw...)
}

// RegisterProxy creates the sender's proxy
func (r *Registry) RegisterProxy(c *host.Context) (*Proxy, error) {
	return r.RegisterProxyFor(c, c.Sender())
}

// RegisterProxyFor creates a proxy owned by account. An existing proxy is never replaced.
func (r *Registry) RegisterProxyFor(c *host.Context, account common.Address) (*Proxy, error) {
	if account == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	kv := c.KV()
	existing, err := state.GetAddress(kv, r.key("proxy", account))
	if err != nil {
		return nil, err
	}
	if existing != (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrProxyExists, account.Hex())
	}

	nonceKey := r.key("nonce")
	nonce, err := state.GetUint64(kv, nonceKey)
	if err != nil {
		return nil, err
	}
	proxy := crypto.CreateAddress(r.address, nonce)
	state.SetUint64(kv, nonceKey, nonce+1)
	state.SetAddress(kv, r.key("proxy", account), proxy)
	state.SetAddress(kv, r.key("owner", proxy), account)

	c.Log().WithFields(logrus.Fields{
		"registry": r.address.Hex(),
		"account":  account.Hex(),
		"proxy":    proxy.Hex(),
	}).Info("proxy registered")

	return &Proxy{registry: r, Address: proxy, Owner: account}, nil
}

// ProxyOf returns the proxy address of account, or the zero address
func (r *Registry) ProxyOf(c *host.Context, account common.Address) (common.Address, error) {
	return state.GetAddress(c.KV(), r.key("proxy", account))
}

// Proxy loads the proxy of account
func (r *Registry) Proxy(c *host.Context, account common.Address) (*Proxy, error) {
	addr, err := r.ProxyOf(c, account)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrProxyNotFound, account.Hex())
	}
	return &Proxy{registry: r, Address: addr, Owner: account}, nil
}

// OwnerOf returns the account owning proxy, or the zero address
func (r *Registry) OwnerOf(c *host.Context, proxy common.Address) (common.Address, error) {
	return state.GetAddress(c.KV(), r.key("owner", proxy))
}

// GrantAuthentication lets caller act through the sender's proxy
func (r *Registry) GrantAuthentication(c *host.Context, caller common.Address) error {
	proxy, err := r.Proxy(c, c.Sender())
	if err != nil {
		return err
	}
	kv := c.KV()
	state.SetBool(kv, r.key("approved", proxy.Address, caller), true)
	state.SetBool(kv, r.key("denied", proxy.Address, caller), false)
	return nil
}

// RevokeAuthentication stops caller from acting through the sender's proxy,
// including any blanket authentication caller holds.
func (r *Registry) RevokeAuthentication(c *host.Context, caller common.Address) error {
	proxy, err := r.Proxy(c, c.Sender())
	if err != nil {
		return err
	}
	kv := c.KV()
	state.SetBool(kv, r.key("approved", proxy.Address, caller), false)
	state.SetBool(kv, r.key("denied", proxy.Address, caller), true)
	return nil
}

// SetRevoke opts the sender's proxy out of (or back into) every blanket authentication
func (r *Registry) SetRevoke(c *host.Context, revoke bool) error {
	proxy, err := r.Proxy(c, c.Sender())
	if err != nil {
		return err
	}
	state.SetBool(c.KV(), r.key("revoked", proxy.Address), revoke)
	return nil
}

// Revoked reports whether proxy has opted out of blanket authentication
func (r *Registry) Revoked(c *host.Context, proxy common.Address) (bool, error) {
	return state.GetBool(c.KV(), r.key("revoked", proxy))
}

// Authenticated reports whether addr holds blanket authentication
func (r *Registry) Authenticated(c *host.Context, addr common.Address) (bool, error) {
	return state.GetBool(c.KV(), r.key("contracts", addr))
}

// Authorized reports whether caller may act through proxy
func (r *Registry) Authorized(c *host.Context, proxy *Proxy, caller common.Address) (bool, error) {
	if caller == proxy.Owner {
		return true, nil
	}
	kv := c.KV()
	approved, err := state.GetBool(kv, r.key("approved", proxy.Address, caller))
	if err != nil || approved {
		return approved, err
	}
	blanket, err := r.Authenticated(c, caller)
	if err != nil || !blanket {
		return false, err
	}
	revoked, err := r.Revoked(c, proxy.Address)
	if err != nil || revoked {
		return false, err
	}
	denied, err := state.GetBool(kv, r.key("denied", proxy.Address, caller))
	if err != nil {
		return false, err
	}
	return !denied, nil
}

func (r *Registry) onlyOwner(c *host.Context) error {
	if c.Sender() != r.owner {
		return ErrNotOwner
	}
	return nil
}

// GrantInitialAuthentication gives addr blanket authentication without delay.
// It can be used once, by the owner.
func (r *Registry) GrantInitialAuthentication(c *host.Context, addr common.Address) error {
	if err := r.onlyOwner(c); err != nil {
		return err
	}
	kv := c.KV()
	initKey := r.key("initialized")
	done, err := state.GetBool(kv, initKey)
	if err != nil {
		return err
	}
	if done {
		return ErrAlreadyInitialized
	}
	state.SetBool(kv, initKey, true)
	state.SetBool(kv, r.key("contracts", addr), true)

	c.Log().WithFields(logrus.Fields{
		"registry": r.address.Hex(),
		"address":  addr.Hex(),
	}).Info("initial authentication granted")
	return nil
}

// StartGrantAuthentication begins the delayed blanket grant of addr
func (r *Registry) StartGrantAuthentication(c *host.Context, addr common.Address) error {
	if err := r.onlyOwner(c); err != nil {
		return err
	}
	kv := c.KV()
	authed, err := r.Authenticated(c, addr)
	if err != nil {
		return err
	}
	if authed {
		return ErrAlreadyAuthenticated
	}
	pending, err := state.GetBool(kv, r.key("pending", addr))
	if err != nil {
		return err
	}
	if pending {
		return ErrGrantPending
	}
	state.SetBool(kv, r.key("pending", addr), true)
	state.SetUint64(kv, r.key("pending_since", addr), c.Now())
	return nil
}

// EndGrantAuthentication completes a grant once the delay has passed
func (r *Registry) EndGrantAuthentication(c *host.Context, addr common.Address) error {
	if err := r.onlyOwner(c); err != nil {
		return err
	}
	kv := c.KV()
	pending, err := state.GetBool(kv, r.key("pending", addr))
	if err != nil {
		return err
	}
	if !pending {
		return ErrNoPendingGrant
	}
	since, err := state.GetUint64(kv, r.key("pending_since", addr))
	if err != nil {
		return err
	}
	if since+uint64(r.delay/time.Second) >= c.Now() {
		return ErrGrantNotReady
	}
	kv.Delete(r.key("pending", addr))
	kv.Delete(r.key("pending_since", addr))
	state.SetBool(kv, r.key("contracts", addr), true)

	c.Log().WithFields(logrus.Fields{
		"registry": r.address.Hex(),
		"address":  addr.Hex(),
	}).Info("authentication granted")
	return nil
}

// RevokeGlobalAuthentication removes the blanket authentication of addr
func (r *Registry) RevokeGlobalAuthentication(c *host.Context, addr common.Address) error {
	if err := r.onlyOwner(c); err != nil {
		return err
	}
	state.SetBool(c.KV(), r.key("contracts", addr), false)
	return nil
}

// AllowDelegateTarget vets (or un-vets) target for proxy delegate calls
func (r *Registry) AllowDelegateTarget(c *host.Context, target common.Address, allowed bool) error {
	if err := r.onlyOwner(c); err != nil {
		return err
	}
	state.SetBool(c.KV(), r.key("delegate", target), allowed)
	return nil
}

// DelegateAllowed reports whether proxies may delegate-call target
func (r *Registry) DelegateAllowed(c *host.Context, target common.Address) (bool, error) {
	return state.GetBool(c.KV(), r.key("delegate", target))
}

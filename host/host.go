// Package host simulates the ledger the exchange runs on: a table of
// contracts addressed like accounts, a block clock, and all-or-nothing
// execution of every state-changing operation.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/wyvern-exchange-go/state"
)

// MaxCallDepth bounds nested calls within one operation
const MaxCallDepth = 64

var (
	// ErrNoContract is returned when calling an address without code
	ErrNoContract = errors.New("host: no contract at address")

	// ErrNotDelegateTarget is returned when delegate-calling code that cannot run in a caller's context
	ErrNotDelegateTarget = errors.New("host: contract does not support delegate calls")

	// ErrCallDepth is returned when nested calls exceed MaxCallDepth
	ErrCallDepth = errors.New("host: max call depth exceeded")

	// ErrAddressInUse is returned when installing code at an occupied address
	ErrAddressInUse = errors.New("host: address already has code")
)

// Contract is code installed at an address. caller is the immediate caller.
type Contract interface {
	Call(c *Context, caller common.Address, payload []byte) ([]byte, error)
}

// DelegateTarget is code that can run in the context of another account,
// acting as self.
type DelegateTarget interface {
	DelegateCall(c *Context, self common.Address, payload []byte) ([]byte, error)
}

// SignatureValidator is implemented by contract accounts that can act as makers
type SignatureValidator interface {
	IsValidSignature(c *Context, digest common.Hash, signature []byte) bool
}

// Host owns the contract table and serialises every operation on the backend.
type Host struct {
	mu        sync.Mutex
	backend   state.Backend
	clock     clock.Clock
	log       *logrus.Entry
	deployer  common.Address
	nonce     uint64
	contracts map[common.Address]Contract
}

// Option configures a Host
type Option func(*Host)

// WithClock replaces the wall clock, e.g. with clock.NewMock() in tests
func WithClock(c clock.Clock) Option {
	return func(h *Host) {
		h.clock = c
	}
}

// WithLogger sets the host logger
func WithLogger(log *logrus.Entry) Option {
	return func(h *Host) {
		h.log = log
	}
}

// WithDeployer sets the account used to derive deployment addresses
func WithDeployer(addr common.Address) Option {
	return func(h *Host) {
		h.deployer = addr
	}
}

// New creates a host over backend
func New(backend state.Backend, opts ...Option) *Host {
	h := &Host{
		backend:   backend,
		clock:     clock.New(),
		log:       logrus.NewEntry(logrus.StandardLogger()),
		deployer:  common.HexToAddress("0x00000000000000000000000000000000000057a7"),
		contracts: make(map[common.Address]Contract),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clock returns the host clock
func (h *Host) Clock() clock.Clock {
	return h.clock
}

// Backend returns the storage backend
func (h *Host) Backend() state.Backend {
	return h.backend
}

// Reserve allocates a fresh address without code. Addresses follow
// CREATE derivation from the deployer, so a host configured in the same
// order always yields the same addresses.
func (h *Host) Reserve() common.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	addr := crypto.CreateAddress(h.deployer, h.nonce)
	h.nonce++
	return addr
}

// Install places contract at a reserved address
func (h *Host) Install(addr common.Address, contract Contract) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.contracts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr.Hex())
	}
	h.contracts[addr] = contract
	h.log.WithFields(logrus.Fields{
		"address":  addr.Hex(),
		"contract": fmt.Sprintf("%T", contract),
	}).Debug("contract installed")
	return nil
}

// Deploy reserves an address and installs contract there
func (h *Host) Deploy(contract Contract) common.Address {
	addr := h.Reserve()
	// fresh addresses are never occupied
	_ = h.Install(addr, contract)
	return addr
}

// ContractAt returns the code installed at addr
func (h *Host) ContractAt(addr common.Address) (Contract, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.contractAt(addr)
}

func (h *Host) contractAt(addr common.Address) (Contract, bool) {
	c, ok := h.contracts[addr]
	return c, ok
}

// Execute runs fn as one operation sent by sender. Every write fn makes is
// committed together when it returns nil and discarded when it returns an error.
func (h *Host) Execute(ctx context.Context, sender common.Address, fn func(*Context) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := state.Begin(ctx, h.backend)
	c := h.newContext(ctx, tx, sender)
	if err := fn(c); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// View runs fn against current state and discards anything it writes
func (h *Host) View(ctx context.Context, fn func(*Context) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := state.Begin(ctx, h.backend)
	defer tx.Discard()
	return fn(h.newContext(ctx, tx, common.Address{}))
}

func (h *Host) newContext(ctx context.Context, tx *state.Tx, sender common.Address) *Context {
	return &Context{
		ctx:    ctx,
		host:   h,
		tx:     tx,
		sender: sender,
		now:    uint64(h.clock.Now().Unix()),
	}
}

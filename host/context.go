package host

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/wyvern-exchange-go/state"
)

// Context is the execution environment of one host operation
type Context struct {
	ctx    context.Context
	host   *Host
	tx     *state.Tx
	sender common.Address
	now    uint64
	depth  int
}

// Context returns the request context
func (c *Context) Context() context.Context {
	return c.ctx
}

// KV returns the operation's staged state
func (c *Context) KV() state.KV {
	return c.tx
}

// Sender returns the account that submitted the operation
func (c *Context) Sender() common.Address {
	return c.sender
}

// Now returns the block time in unix seconds, fixed for the whole operation
func (c *Context) Now() uint64 {
	return c.now
}

// Log returns the host logger
func (c *Context) Log() *logrus.Entry {
	return c.host.log
}

// Contract returns the code at addr
func (c *Context) Contract(addr common.Address) (Contract, bool) {
	return c.host.contractAt(addr)
}

// Call invokes target on behalf of caller. State changes made by a failing
// call are reverted before the error is returned.
func (c *Context) Call(caller, target common.Address, payload []byte) ([]byte, error) {
	contract, ok := c.host.contractAt(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoContract, target.Hex())
	}
	return c.nested(func(inner *Context) ([]byte, error) {
		return contract.Call(inner, caller, payload)
	})
}

// DelegateCall runs the code at target as self
func (c *Context) DelegateCall(self, target common.Address, payload []byte) ([]byte, error) {
	contract, ok := c.host.contractAt(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoContract, target.Hex())
	}
	delegate, ok := contract.(DelegateTarget)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDelegateTarget, target.Hex())
	}
	return c.nested(func(inner *Context) ([]byte, error) {
		return delegate.DelegateCall(inner, self, payload)
	})
}

func (c *Context) nested(fn func(*Context) ([]byte, error)) ([]byte, error) {
	if c.depth >= MaxCallDepth {
		return nil, ErrCallDepth
	}
	inner := *c
	inner.depth++

	snap := c.tx.Snapshot()
	ret, err := fn(&inner)
	if err != nil {
		c.tx.RevertToSnapshot(snap)
		return nil, err
	}
	return ret, nil
}

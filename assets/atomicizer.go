package assets

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
)

var (
	// ErrDelegateOnly is returned when the atomicizer is called directly
	ErrDelegateOnly = errors.New("atomicizer: must be delegate-called")

	// ErrMalformedBatch is returned for inconsistent atomicize arguments
	ErrMalformedBatch = errors.New("atomicizer: malformed batch")
)

// Atomicizer runs a batch of calls as the delegating account. Any failing
// call fails the whole batch.
type Atomicizer struct {
	address common.Address
}

var (
	_ host.Contract       = (*Atomicizer)(nil)
	_ host.DelegateTarget = (*Atomicizer)(nil)
)

// DeployAtomicizer installs an atomicizer
func DeployAtomicizer(h *host.Host) (*Atomicizer, error) {
	a := &Atomicizer{address: h.Reserve()}
	if err := h.Install(a.address, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Address returns the contract address
func (a *Atomicizer) Address() common.Address {
	return a.address
}

// Call implements host.Contract
func (a *Atomicizer) Call(*host.Context, common.Address, []byte) ([]byte, error) {
	return nil, ErrDelegateOnly
}

// DelegateCall implements host.DelegateTarget
func (a *Atomicizer) DelegateCall(c *host.Context, self common.Address, payload []byte) ([]byte, error) {
	method, args, err := chain.DecodeCall(chain.GetAtomicizerABI(), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	if method.Name != "atomicize" {
		return nil, fmt.Errorf("%w: unexpected method %s", ErrMalformedBatch, method.Name)
	}
	addrs := args[0].([]common.Address)
	values := args[1].([]*big.Int)
	lengths := args[2].([]*big.Int)
	calldatas := args[3].([]byte)

	if len(addrs) != len(values) || len(addrs) != len(lengths) {
		return nil, fmt.Errorf("%w: %d targets, %d values, %d lengths", ErrMalformedBatch, len(addrs), len(values), len(lengths))
	}

	offset := uint64(0)
	for i, target := range addrs {
		if values[i].Sign() != 0 {
			return nil, fmt.Errorf("%w: call %d carries value", ErrMalformedBatch, i)
		}
		if !lengths[i].IsUint64() || lengths[i].Uint64() > uint64(len(calldatas))-offset {
			return nil, fmt.Errorf("%w: call %d calldata out of range", ErrMalformedBatch, i)
		}
		end := offset + lengths[i].Uint64()
		if _, err := c.Call(self, target, calldatas[offset:end]); err != nil {
			return nil, fmt.Errorf("atomicized call %d to %s: %w", i, target.Hex(), err)
		}
		offset = end
	}
	if offset != uint64(len(calldatas)) {
		return nil, fmt.Errorf("%w: %d trailing calldata bytes", ErrMalformedBatch, uint64(len(calldatas))-offset)
	}
	return nil, nil
}

package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
)

var (
	ErrUnauthorized       = errors.New("proxy: caller not authorized")
	ErrDelegateNotAllowed = errors.New("proxy: delegate target not allowed")
	ErrCallFailed         = errors.New("proxy: call failed")
)

// Proxy acts for exactly one account
type Proxy struct {
	registry *Registry
	Address  common.Address
	Owner    common.Address
}

// Execute performs call as the proxy. caller must be authorized.
func (p *Proxy) Execute(c *host.Context, caller common.Address, call chain.Call) ([]byte, error) {
	ok, err := p.registry.Authorized(c, p, caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s via %s", ErrUnauthorized, caller.Hex(), p.Address.Hex())
	}

	switch call.HowToCall {
	case chain.HowToCallCall:
		ret, err := c.Call(p.Address, call.Target, call.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCallFailed, err)
		}
		return ret, nil
	case chain.HowToCallDelegateCall:
		allowed, err := p.registry.DelegateAllowed(c, call.Target)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDelegateNotAllowed, call.Target.Hex())
		}
		ret, err := c.DelegateCall(p.Address, call.Target, call.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCallFailed, err)
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("%w: unknown call type %s", ErrCallFailed, call.HowToCall)
	}
}

package wyvern

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/wyvern-exchange-go/assets"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/registry"
	"github.com/kaifufi/wyvern-exchange-go/statics"
)

// DeployOptions configures a deployment
type DeployOptions struct {
	ChainID             *big.Int      // defaults to ChainIDDevnet
	AuthenticationDelay time.Duration // defaults to registry.DefaultAuthenticationDelay
	Exchange            []ExchangeOption
}

// Deployment is a bootstrapped exchange with its registry, predicates and
// atomicizer.
type Deployment struct {
	Host         *host.Host
	Owner        common.Address
	Registry     *registry.Registry
	StaticMarket common.Address
	Statics      *statics.Registry
	Atomicizer   *assets.Atomicizer
	Exchange     *Exchange
}

// Deploy installs an exchange on h administered by owner. The registry vets the
// atomicizer as a delegate target and grants the exchange initial
// authentication; redeploying on a host over existing state skips the grant.
func Deploy(ctx context.Context, h *host.Host, owner common.Address, opts DeployOptions) (*Deployment, error) {
	if owner == (common.Address{}) {
		return nil, &InvalidParamError{Message: "owner is required"}
	}
	chainID := opts.ChainID
	if chainID == nil {
		chainID = ChainIDDevnet.Big()
	}
	delay := opts.AuthenticationDelay
	if delay == 0 {
		delay = registry.DefaultAuthenticationDelay
	}

	reg := registry.New(h.Reserve(), owner, registry.WithAuthenticationDelay(delay))

	staticMarket := h.Reserve()
	predicates := statics.NewRegistry()
	statics.RegisterMarket(predicates, staticMarket)

	atomicizer, err := assets.DeployAtomicizer(h)
	if err != nil {
		return nil, fmt.Errorf("deploy atomicizer: %w", err)
	}

	exchange := NewExchange(h, h.Reserve(), chainID, predicates, []*registry.Registry{reg}, opts.Exchange...)
	if err := h.Install(exchange.Address(), exchange); err != nil {
		return nil, fmt.Errorf("install exchange: %w", err)
	}

	err = h.Execute(ctx, owner, func(c *host.Context) error {
		if err := reg.AllowDelegateTarget(c, atomicizer.Address(), true); err != nil {
			return err
		}
		authed, err := reg.Authenticated(c, exchange.Address())
		if err != nil || authed {
			return err
		}
		return reg.GrantInitialAuthentication(c, exchange.Address())
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap registry: %w", err)
	}

	exchange.log.WithFields(logrus.Fields{
		"registry":      reg.Address().Hex(),
		"static_market": staticMarket.Hex(),
		"atomicizer":    atomicizer.Address().Hex(),
		"chain_id":      chainID.String(),
	}).Info("exchange deployed")

	return &Deployment{
		Host:         h,
		Owner:        owner,
		Registry:     reg,
		StaticMarket: staticMarket,
		Statics:      predicates,
		Atomicizer:   atomicizer,
		Exchange:     exchange,
	}, nil
}

// RegisterProxy creates the proxy of account in the deployment's registry
func (d *Deployment) RegisterProxy(ctx context.Context, account common.Address) (common.Address, error) {
	var proxy common.Address
	err := d.Host.Execute(ctx, account, func(c *host.Context) error {
		p, err := d.Registry.RegisterProxy(c)
		if err != nil {
			return err
		}
		proxy = p.Address
		return nil
	})
	return proxy, err
}

// ProxyOf returns the proxy of account, or the zero address
func (d *Deployment) ProxyOf(ctx context.Context, account common.Address) (common.Address, error) {
	var proxy common.Address
	err := d.Host.View(ctx, func(c *host.Context) error {
		var err error
		proxy, err = d.Registry.ProxyOf(c, account)
		return err
	})
	return proxy, err
}

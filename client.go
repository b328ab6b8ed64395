package wyvern

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
)

// Client acts for one account on a deployment: it registers the account's
// proxy, approves assets to it, signs orders and submits matches.
type Client struct {
	deployment *Deployment
	key        *ecdsa.PrivateKey
	address    common.Address
	builder    *chain.OrderBuilder
}

// NewClient creates a client signing with key
func NewClient(d *Deployment, key *ecdsa.PrivateKey) (*Client, error) {
	if d == nil {
		return nil, &InvalidParamError{Message: "deployment is required"}
	}
	if key == nil {
		return nil, &InvalidParamError{Message: "private key is required"}
	}
	ex := d.Exchange
	return &Client{
		deployment: d,
		key:        key,
		address:    chain.AddressOf(key),
		builder:    chain.NewOrderBuilder(ex.Address(), ex.Domain().ChainID.Int64(), key),
	}, nil
}

// Address returns the account address
func (c *Client) Address() common.Address {
	return c.address
}

// RegisterProxy creates the account's proxy
func (c *Client) RegisterProxy(ctx context.Context) (common.Address, error) {
	return c.deployment.RegisterProxy(ctx, c.address)
}

// Proxy returns the account's proxy, or the zero address
func (c *Client) Proxy(ctx context.Context) (common.Address, error) {
	return c.deployment.ProxyOf(ctx, c.address)
}

// ApproveERC20 lets the account's proxy spend amount of an ERC20 token
func (c *Client) ApproveERC20(ctx context.Context, token common.Address, amount *big.Int) error {
	proxy, err := c.requireProxy(ctx)
	if err != nil {
		return err
	}
	payload, err := chain.GetERC20ABI().Pack("approve", proxy, amount)
	if err != nil {
		return fmt.Errorf("failed to pack approve: %w", err)
	}
	return c.call(ctx, token, payload)
}

// ApproveAll lets the account's proxy move every ERC721 or ERC1155 token the
// account holds at token
func (c *Client) ApproveAll(ctx context.Context, token common.Address) error {
	proxy, err := c.requireProxy(ctx)
	if err != nil {
		return err
	}
	payload, err := chain.GetERC721ABI().Pack("setApprovalForAll", proxy, true)
	if err != nil {
		return fmt.Errorf("failed to pack setApprovalForAll: %w", err)
	}
	return c.call(ctx, token, payload)
}

// PlaceOrder builds and signs an order made by the account. Registry and
// static target default to the deployment's.
func (c *Client) PlaceOrder(data *chain.OrderData) (*chain.SignedOrder, error) {
	if data == nil {
		return nil, &InvalidParamError{Message: "order data is required"}
	}
	cpy := *data
	if cpy.Registry == (common.Address{}) {
		cpy.Registry = c.deployment.Registry.Address()
	}
	if cpy.StaticTarget == (common.Address{}) {
		cpy.StaticTarget = c.deployment.StaticMarket
	}
	cpy.Maker = c.address
	return c.builder.BuildSignedOrder(&cpy)
}

// ApproveOrder records the account's approval of order on the exchange
func (c *Client) ApproveOrder(ctx context.Context, order *chain.Order) (common.Hash, error) {
	return c.deployment.Exchange.ApproveOrder(ctx, c.address, order)
}

// CancelOrder cancels one of the account's orders
func (c *Client) CancelOrder(ctx context.Context, order *chain.Order) (common.Hash, error) {
	return c.deployment.Exchange.CancelOrder(ctx, c.address, order)
}

// Match submits a match with the account as matcher
func (c *Client) Match(ctx context.Context, req *MatchRequest) (*MatchResult, error) {
	return c.deployment.Exchange.AtomicMatch(ctx, c.address, req)
}

func (c *Client) requireProxy(ctx context.Context) (common.Address, error) {
	proxy, err := c.Proxy(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if proxy == (common.Address{}) {
		return common.Address{}, fmt.Errorf("account %s has no proxy", c.address.Hex())
	}
	return proxy, nil
}

func (c *Client) call(ctx context.Context, target common.Address, payload []byte) error {
	return c.deployment.Host.Execute(ctx, c.address, func(hc *host.Context) error {
		_, err := hc.Call(c.address, target, payload)
		return err
	})
}

package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

// ERC20 is a fungible token
type ERC20 struct {
	token
}

var _ host.Contract = (*ERC20)(nil)

// DeployERC20 installs a new ERC20 token mintable by minter
func DeployERC20(h *host.Host, minter common.Address) (*ERC20, error) {
	t := &ERC20{token{address: h.Reserve(), minter: minter, abi: chain.GetERC20ABI(), kind: "erc20"}}
	if err := h.Install(t.address, t); err != nil {
		return nil, err
	}
	return t, nil
}

// BalanceOf returns the balance of account
func (t *ERC20) BalanceOf(kv state.KV, account common.Address) (*big.Int, error) {
	return state.GetBig(kv, t.key("balance", account.Bytes()))
}

// Allowance returns how much spender may move from owner
func (t *ERC20) Allowance(kv state.KV, owner, spender common.Address) (*big.Int, error) {
	return state.GetBig(kv, t.key("allowance", owner.Bytes(), spender.Bytes()))
}

// TotalSupply returns the minted supply
func (t *ERC20) TotalSupply(kv state.KV) (*big.Int, error) {
	return state.GetBig(kv, t.key("supply"))
}

// Call implements host.Contract
func (t *ERC20) Call(c *host.Context, caller common.Address, payload []byte) ([]byte, error) {
	method, args, err := t.decode(payload)
	if err != nil {
		return nil, err
	}
	kv := c.KV()

	switch method.Name {
	case "balanceOf":
		bal, err := t.BalanceOf(kv, args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(bal)
	case "allowance":
		allowance, err := t.Allowance(kv, args[0].(common.Address), args[1].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(allowance)
	case "totalSupply":
		supply, err := t.TotalSupply(kv)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(supply)
	case "approve":
		state.SetBig(kv, t.key("allowance", caller.Bytes(), args[0].(common.Address).Bytes()), args[1].(*big.Int))
		return method.Outputs.Pack(true)
	case "transfer":
		if err := t.move(kv, caller, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)
	case "transferFrom":
		from, to, amount := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
		if caller != from {
			if err := t.spendAllowance(kv, from, caller, amount); err != nil {
				return nil, err
			}
		}
		if err := t.move(kv, from, to, amount); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)
	case "mint":
		if err := t.onlyMinter(caller); err != nil {
			return nil, err
		}
		if err := t.mint(kv, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("erc20: %w: %s", ErrUnsupportedMethod, method.Name)
	}
}

func (t *ERC20) spendAllowance(kv state.KV, owner, spender common.Address, amount *big.Int) error {
	key := t.key("allowance", owner.Bytes(), spender.Bytes())
	allowance, err := state.GetBig(kv, key)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("erc20: %w: %s < %s", ErrInsufficientAllowance, allowance, amount)
	}
	state.SetBig(kv, key, allowance.Sub(allowance, amount))
	return nil
}

func (t *ERC20) move(kv state.KV, from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("erc20: transfer to the %w", ErrZeroAddress)
	}
	fromKey := t.key("balance", from.Bytes())
	balance, err := state.GetBig(kv, fromKey)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("erc20: %w: %s < %s", ErrInsufficientBalance, balance, amount)
	}
	state.SetBig(kv, fromKey, new(big.Int).Sub(balance, amount))

	toKey := t.key("balance", to.Bytes())
	recipient, err := state.GetBig(kv, toKey)
	if err != nil {
		return err
	}
	state.SetBig(kv, toKey, recipient.Add(recipient, amount))
	return nil
}

func (t *ERC20) mint(kv state.KV, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("erc20: mint to the %w", ErrZeroAddress)
	}
	balance, err := t.BalanceOf(kv, to)
	if err != nil {
		return err
	}
	state.SetBig(kv, t.key("balance", to.Bytes()), balance.Add(balance, amount))

	supply, err := t.TotalSupply(kv)
	if err != nil {
		return err
	}
	state.SetBig(kv, t.key("supply"), supply.Add(supply, amount))
	return nil
}

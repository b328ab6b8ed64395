package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

// ERC1155 is a multi-token contract
type ERC1155 struct {
	token
}

var _ host.Contract = (*ERC1155)(nil)

// DeployERC1155 installs a new ERC1155 contract mintable by minter
func DeployERC1155(h *host.Host, minter common.Address) (*ERC1155, error) {
	t := &ERC1155{token{address: h.Reserve(), minter: minter, abi: chain.GetERC1155ABI(), kind: "erc1155"}}
	if err := h.Install(t.address, t); err != nil {
		return nil, err
	}
	return t, nil
}

// BalanceOf returns the amount of token id held by account
func (t *ERC1155) BalanceOf(kv state.KV, account common.Address, id *big.Int) (*big.Int, error) {
	return state.GetBig(kv, t.key("balance", idBytes(id), account.Bytes()))
}

// Call implements host.Contract
func (t *ERC1155) Call(c *host.Context, caller common.Address, payload []byte) ([]byte, error) {
	method, args, err := t.decode(payload)
	if err != nil {
		return nil, err
	}
	kv := c.KV()

	switch method.Name {
	case "balanceOf":
		bal, err := t.BalanceOf(kv, args[0].(common.Address), args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(bal)
	case "setApprovalForAll":
		t.setBool(kv, args[1].(bool), "operator", caller, args[0].(common.Address))
		return nil, nil
	case "isApprovedForAll":
		ok, err := t.getBool(kv, "operator", args[0].(common.Address), args[1].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(ok)
	case "safeTransferFrom":
		from, to := args[0].(common.Address), args[1].(common.Address)
		if caller != from {
			operator, err := t.getBool(kv, "operator", from, caller)
			if err != nil {
				return nil, err
			}
			if !operator {
				return nil, fmt.Errorf("erc1155: %w", ErrNotApproved)
			}
		}
		if err := t.move(kv, from, to, args[2].(*big.Int), args[3].(*big.Int)); err != nil {
			return nil, err
		}
		return nil, nil
	case "mint":
		if err := t.onlyMinter(caller); err != nil {
			return nil, err
		}
		to, id, amount := args[0].(common.Address), args[1].(*big.Int), args[2].(*big.Int)
		if to == (common.Address{}) {
			return nil, fmt.Errorf("erc1155: mint to the %w", ErrZeroAddress)
		}
		bal, err := t.BalanceOf(kv, to, id)
		if err != nil {
			return nil, err
		}
		state.SetBig(kv, t.key("balance", idBytes(id), to.Bytes()), bal.Add(bal, amount))
		return nil, nil
	default:
		return nil, fmt.Errorf("erc1155: %w: %s", ErrUnsupportedMethod, method.Name)
	}
}

func (t *ERC1155) move(kv state.KV, from, to common.Address, id, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("erc1155: transfer to the %w", ErrZeroAddress)
	}
	fromKey := t.key("balance", idBytes(id), from.Bytes())
	bal, err := state.GetBig(kv, fromKey)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("erc1155: %w: %s < %s", ErrInsufficientBalance, bal, amount)
	}
	state.SetBig(kv, fromKey, new(big.Int).Sub(bal, amount))

	toKey := t.key("balance", idBytes(id), to.Bytes())
	recipient, err := state.GetBig(kv, toKey)
	if err != nil {
		return err
	}
	state.SetBig(kv, toKey, recipient.Add(recipient, amount))
	return nil
}

package assets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

// ERC721 is a non-fungible token
type ERC721 struct {
	token
}

var _ host.Contract = (*ERC721)(nil)

// DeployERC721 installs a new ERC721 token mintable by minter
func DeployERC721(h *host.Host, minter common.Address) (*ERC721, error) {
	t := &ERC721{token{address: h.Reserve(), minter: minter, abi: chain.GetERC721ABI(), kind: "erc721"}}
	if err := h.Install(t.address, t); err != nil {
		return nil, err
	}
	return t, nil
}

// OwnerOf returns the owner of tokenID, or the zero address
func (t *ERC721) OwnerOf(kv state.KV, tokenID *big.Int) (common.Address, error) {
	return state.GetAddress(kv, t.key("owner", idBytes(tokenID)))
}

// BalanceOf returns how many tokens owner holds
func (t *ERC721) BalanceOf(kv state.KV, owner common.Address) (*big.Int, error) {
	return state.GetBig(kv, t.key("balance", owner.Bytes()))
}

// Call implements host.Contract
func (t *ERC721) Call(c *host.Context, caller common.Address, payload []byte) ([]byte, error) {
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
	case "ownerOf":
		owner, err := t.existingOwner(kv, args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(owner)
	case "getApproved":
		id := args[0].(*big.Int)
		if _, err := t.existingOwner(kv, id); err != nil {
			return nil, err
		}
		approved, err := state.GetAddress(kv, t.key("approved", idBytes(id)))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(approved)
	case "approve":
		to, id := args[0].(common.Address), args[1].(*big.Int)
		owner, err := t.existingOwner(kv, id)
		if err != nil {
			return nil, err
		}
		operator, err := t.getBool(kv, "operator", owner, caller)
		if err != nil {
			return nil, err
		}
		if caller != owner && !operator {
			return nil, fmt.Errorf("erc721: approve: %w", ErrNotApproved)
		}
		state.SetAddress(kv, t.key("approved", idBytes(id)), to)
		return nil, nil
	case "setApprovalForAll":
		t.setBool(kv, args[1].(bool), "operator", caller, args[0].(common.Address))
		return nil, nil
	case "isApprovedForAll":
		ok, err := t.getBool(kv, "operator", args[0].(common.Address), args[1].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(ok)
	case "transferFrom", "safeTransferFrom":
		if err := t.transfer(kv, caller, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)); err != nil {
			return nil, err
		}
		return nil, nil
	case "mint":
		if err := t.onlyMinter(caller); err != nil {
			return nil, err
		}
		if err := t.mint(kv, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("erc721: %w: %s", ErrUnsupportedMethod, method.Name)
	}
}

func (t *ERC721) existingOwner(kv state.KV, id *big.Int) (common.Address, error) {
	owner, err := t.OwnerOf(kv, id)
	if err != nil {
		return common.Address{}, err
	}
	if owner == (common.Address{}) {
		return common.Address{}, fmt.Errorf("erc721: %w: %s", ErrNonexistentToken, id)
	}
	return owner, nil
}

func (t *ERC721) transfer(kv state.KV, caller, from, to common.Address, id *big.Int) error {
	owner, err := t.existingOwner(kv, id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("erc721: %w", ErrWrongOwner)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("erc721: transfer to the %w", ErrZeroAddress)
	}
	approvedKey := t.key("approved", idBytes(id))
	if caller != owner {
		approved, err := state.GetAddress(kv, approvedKey)
		if err != nil {
			return err
		}
		operator, err := t.getBool(kv, "operator", owner, caller)
		if err != nil {
			return err
		}
		if approved != caller && !operator {
			return fmt.Errorf("erc721: transfer: %w", ErrNotApproved)
		}
	}

	kv.Delete(approvedKey)
	if err := t.adjustBalance(kv, from, -1); err != nil {
		return err
	}
	if err := t.adjustBalance(kv, to, 1); err != nil {
		return err
	}
	state.SetAddress(kv, t.key("owner", idBytes(id)), to)
	return nil
}

func (t *ERC721) mint(kv state.KV, to common.Address, id *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("erc721: mint to the %w", ErrZeroAddress)
	}
	owner, err := t.OwnerOf(kv, id)
	if err != nil {
		return err
	}
	if owner != (common.Address{}) {
		return fmt.Errorf("erc721: %w: %s", ErrTokenExists, id)
	}
	if err := t.adjustBalance(kv, to, 1); err != nil {
		return err
	}
	state.SetAddress(kv, t.key("owner", idBytes(id)), to)
	return nil
}

func (t *ERC721) adjustBalance(kv state.KV, owner common.Address, delta int64) error {
	key := t.key("balance", owner.Bytes())
	bal, err := state.GetBig(kv, key)
	if err != nil {
		return err
	}
	state.SetBig(kv, key, bal.Add(bal, big.NewInt(delta)))
	return nil
}

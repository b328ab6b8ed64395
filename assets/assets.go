// Package assets provides ABI-dispatched token contracts and the atomicizer
// for the host. They stand in for the external asset ledgers settlement
// calls move value on.
package assets

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/state"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotMinter             = errors.New("caller is not the minter")
	ErrNotApproved           = errors.New("caller is not owner nor approved")
	ErrWrongOwner            = errors.New("transfer from incorrect owner")
	ErrNonexistentToken      = errors.New("nonexistent token")
	ErrTokenExists           = errors.New("token already minted")
	ErrZeroAddress           = errors.New("zero address")
	ErrUnsupportedMethod     = errors.New("unsupported method")
)

// token holds what every asset contract shares: its address, its minter and its ABI
type token struct {
	address common.Address
	minter  common.Address
	abi     abi.ABI
	kind    string
}

// Address returns the contract address
func (t *token) Address() common.Address {
	return t.address
}

func (t *token) key(kind string, parts ...[]byte) []byte {
	return state.Key(t.kind+"/"+kind, append([][]byte{t.address.Bytes()}, parts...)...)
}

func (t *token) decode(payload []byte) (*abi.Method, []interface{}, error) {
	method, args, err := chain.DecodeCall(t.abi, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", t.kind, t.address.Hex(), err)
	}
	return method, args, nil
}

func (t *token) onlyMinter(caller common.Address) error {
	if caller != t.minter {
		return fmt.Errorf("%s: %w", t.kind, ErrNotMinter)
	}
	return nil
}

func (t *token) getBool(kv state.KV, kind string, parts ...common.Address) (bool, error) {
	return state.GetBool(kv, t.key(kind, addrBytes(parts)...))
}

func (t *token) setBool(kv state.KV, v bool, kind string, parts ...common.Address) {
	state.SetBool(kv, t.key(kind, addrBytes(parts)...), v)
}

func addrBytes(addrs []common.Address) [][]byte {
	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		out[i] = a.Bytes()
	}
	return out
}

func idBytes(id *big.Int) []byte {
	return common.BigToHash(id).Bytes()
}

package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrShortCalldata is returned when a payload is too short to carry a selector
var ErrShortCalldata = errors.New("calldata shorter than a selector")

// ERC20TransferFrom encodes transferFrom(from, to, amount) for an ERC20 token
func ERC20TransferFrom(from, to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transferFrom", from, to, amount)
}

// ERC721TransferFrom encodes transferFrom(from, to, tokenId) for an ERC721 token
func ERC721TransferFrom(from, to common.Address, tokenID *big.Int) ([]byte, error) {
	return erc721ABI.Pack("transferFrom", from, to, tokenID)
}

// ERC1155SafeTransferFrom encodes safeTransferFrom(from, to, id, amount, data) for an ERC1155 token
func ERC1155SafeTransferFrom(from, to common.Address, id, amount *big.Int, data []byte) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	return erc1155ABI.Pack("safeTransferFrom", from, to, id, amount, data)
}

// Atomicize encodes a batch of direct calls for the atomicizer delegate target
func Atomicize(calls []Call) ([]byte, error) {
	addrs := make([]common.Address, 0, len(calls))
	values := make([]*big.Int, 0, len(calls))
	lengths := make([]*big.Int, 0, len(calls))
	var calldatas []byte
	for i, call := range calls {
		if call.HowToCall != HowToCallCall {
			return nil, fmt.Errorf("atomicized call %d: only direct calls can be batched", i)
		}
		addrs = append(addrs, call.Target)
		values = append(values, new(big.Int))
		lengths = append(lengths, big.NewInt(int64(len(call.Data))))
		calldatas = append(calldatas, call.Data...)
	}
	if calldatas == nil {
		calldatas = []byte{}
	}
	return atomicizerABI.Pack("atomicize", addrs, values, lengths, calldatas)
}

// DecodeCall resolves the method a payload invokes on contract and unpacks its
// arguments. The argument count always equals the method's input count.
func DecodeCall(contract abi.ABI, payload []byte) (*abi.Method, []interface{}, error) {
	if len(payload) < 4 {
		return nil, nil, ErrShortCalldata
	}
	method, err := contract.MethodById(payload[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(payload[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	if len(args) != len(method.Inputs) {
		return nil, nil, fmt.Errorf("unpack %s: want %d arguments, got %d", method.Name, len(method.Inputs), len(args))
	}
	return method, args, nil
}

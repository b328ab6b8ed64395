package statics

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	addressPairType, _ = abi.NewType("address[2]", "", nil)
	uintPairType, _    = abi.NewType("uint256[2]", "", nil)
	uintTripleType, _  = abi.NewType("uint256[3]", "", nil)

	pairArgs   = abi.Arguments{{Type: addressPairType}, {Type: uintPairType}}
	tripleArgs = abi.Arguments{{Type: addressPairType}, {Type: uintTripleType}}
)

// EncodePair encodes (address[2] tokens, uint256[2] values)
func EncodePair(give, get common.Address, a, b *big.Int) ([]byte, error) {
	return pairArgs.Pack([2]common.Address{give, get}, [2]*big.Int{a, b})
}

// EncodeTriple encodes (address[2] tokens, uint256[3] values)
func EncodeTriple(give, get common.Address, a, b, c *big.Int) ([]byte, error) {
	return tripleArgs.Pack([2]common.Address{give, get}, [3]*big.Int{a, b, c})
}

func decodePair(extradata []byte) ([2]common.Address, [2]*big.Int, error) {
	values, err := pairArgs.Unpack(extradata)
	if err != nil {
		return [2]common.Address{}, [2]*big.Int{}, fmt.Errorf("decode extradata: %w", err)
	}
	tokens, ok1 := values[0].([2]common.Address)
	nums, ok2 := values[1].([2]*big.Int)
	if !ok1 || !ok2 {
		return [2]common.Address{}, [2]*big.Int{}, fmt.Errorf("decode extradata: unexpected layout")
	}
	return tokens, nums, nil
}

func decodeTriple(extradata []byte) ([2]common.Address, [3]*big.Int, error) {
	values, err := tripleArgs.Unpack(extradata)
	if err != nil {
		return [2]common.Address{}, [3]*big.Int{}, fmt.Errorf("decode extradata: %w", err)
	}
	tokens, ok1 := values[0].([2]common.Address)
	nums, ok2 := values[1].([3]*big.Int)
	if !ok1 || !ok2 {
		return [2]common.Address{}, [3]*big.Int{}, fmt.Errorf("decode extradata: unexpected layout")
	}
	return tokens, nums, nil
}

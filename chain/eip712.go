package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

// Order hashing errors
var (
	ErrNilMaximumFill = errors.New("order maximum fill is nil")
	ErrNilSalt        = errors.New("order salt is nil")
	ErrOutOfRange     = errors.New("order value outside uint256 range")
)

// EIP712 Domain constants
const (
	EIP712DomainName    = "Wyvern Exchange"
	EIP712DomainVersion = "3.1"
)

// Pre-computed type hashes using keccak256
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	// Order(address registry,address maker,address staticTarget,bytes4 staticSelector,bytes staticExtradata,uint256 maximumFill,uint256 listingTime,uint256 expirationTime,uint256 salt)
	OrderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(address registry,address maker,address staticTarget,bytes4 staticSelector,bytes staticExtradata,uint256 maximumFill,uint256 listingTime,uint256 expirationTime,uint256 salt)",
	))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	bytes4Type, _  = abi.NewType("bytes4", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
)

// EIP712Domain represents the EIP712 domain separator data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewEIP712Domain creates a new EIP712Domain with the standard values
func NewEIP712Domain(chainID *big.Int, verifyingContract common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainID:           new(big.Int).Set(chainID),
		VerifyingContract: verifyingContract,
	}
}

// Hash computes the EIP712 domain separator hash
func (d *EIP712Domain) Hash() common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // nameHash
		{Type: bytes32Type}, // versionHash
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	encoded, err := arguments.Pack(
		EIP712DomainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		d.ChainID,
		d.VerifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// HashOrder computes the order fingerprint: the EIP712 struct hash over every order field.
// Identical field values always yield the identical fingerprint.
func HashOrder(order *Order) (common.Hash, error) {
	if order.MaximumFill == nil {
		return common.Hash{}, ErrNilMaximumFill
	}
	if order.Salt == nil {
		return common.Hash{}, ErrNilSalt
	}
	// abi packing reduces big integers modulo 2^256, which would let distinct
	// orders share a fingerprint.
	if err := checkUint256("maximumFill", order.MaximumFill); err != nil {
		return common.Hash{}, err
	}
	if err := checkUint256("salt", order.Salt); err != nil {
		return common.Hash{}, err
	}

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: addressType}, // registry
		{Type: addressType}, // maker
		{Type: addressType}, // staticTarget
		{Type: bytes4Type},  // staticSelector
		{Type: bytes32Type}, // keccak256(staticExtradata)
		{Type: uint256Type}, // maximumFill
		{Type: uint256Type}, // listingTime
		{Type: uint256Type}, // expirationTime
		{Type: uint256Type}, // salt
	}

	encoded, err := arguments.Pack(
		OrderTypeHash,
		order.Registry,
		order.Maker,
		order.StaticTarget,
		[4]byte(order.StaticSelector),
		crypto.Keccak256Hash(order.StaticExtradata),
		order.MaximumFill,
		new(big.Int).SetUint64(order.ListingTime),
		new(big.Int).SetUint64(order.ExpirationTime),
		order.Salt,
	)
	if err != nil {
		return common.Hash{}, err
	}

	return crypto.Keccak256Hash(encoded), nil
}

func checkUint256(field string, v *big.Int) error {
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrOutOfRange, field)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%w: %s exceeds 256 bits", ErrOutOfRange, field)
	}
	return nil
}

// HashToSign creates the final EIP712 digest a maker signs for an order fingerprint:
// keccak256("\x19\x01" ++ domainSeparator ++ fingerprint)
func HashToSign(domain *EIP712Domain, fingerprint common.Hash) common.Hash {
	domainSeparator := domain.Hash()

	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, domainSeparator.Bytes()...)
	data = append(data, fingerprint.Bytes()...)

	return crypto.Keccak256Hash(data)
}

// OrderTypes are the EIP712 type definitions of an order
var OrderTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": []apitypes.Type{
		{Name: "registry", Type: "address"},
		{Name: "maker", Type: "address"},
		{Name: "staticTarget", Type: "address"},
		{Name: "staticSelector", Type: "bytes4"},
		{Name: "staticExtradata", Type: "bytes"},
		{Name: "maximumFill", Type: "uint256"},
		{Name: "listingTime", Type: "uint256"},
		{Name: "expirationTime", Type: "uint256"},
		{Name: "salt", Type: "uint256"},
	},
}

// TypedData returns the eth_signTypedData_v4 payload for an order, suitable for
// wallets that sign typed data instead of raw digests.
func TypedData(domain *EIP712Domain, order *Order) apitypes.TypedData {
	maximumFill, salt := "0", "0"
	if order.MaximumFill != nil {
		maximumFill = order.MaximumFill.String()
	}
	if order.Salt != nil {
		salt = order.Salt.String()
	}

	return apitypes.TypedData{
		Types:       OrderTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"registry":        order.Registry.Hex(),
			"maker":           order.Maker.Hex(),
			"staticTarget":    order.StaticTarget.Hex(),
			"staticSelector":  order.StaticSelector.Hex(),
			"staticExtradata": hexutil.Encode(order.StaticExtradata),
			"maximumFill":     maximumFill,
			"listingTime":     new(big.Int).SetUint64(order.ListingTime).String(),
			"expirationTime":  new(big.Int).SetUint64(order.ExpirationTime).String(),
			"salt":            salt,
		},
	}
}

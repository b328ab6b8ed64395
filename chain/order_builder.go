package chain

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderData represents the data for building an order
type OrderData struct {
	Registry        common.Address
	Maker           common.Address
	StaticTarget    common.Address
	StaticSignature string // canonical predicate signature, used when StaticSelector is zero
	StaticSelector  Selector
	StaticExtradata []byte
	MaximumFill     *big.Int
	ListingTime     uint64
	ExpirationTime  uint64
	Salt            *big.Int // generated when nil
}

// OrderBuilder builds and signs orders
type OrderBuilder struct {
	domain *EIP712Domain
	signer *ecdsa.PrivateKey
}

// NewOrderBuilder creates a new OrderBuilder. signer may be nil when only
// unsigned orders are needed.
func NewOrderBuilder(exchangeAddr common.Address, chainID int64, signer *ecdsa.PrivateKey) *OrderBuilder {
	return &OrderBuilder{
		domain: NewEIP712Domain(big.NewInt(chainID), exchangeAddr),
		signer: signer,
	}
}

// Domain returns the EIP712 domain orders are signed under
func (ob *OrderBuilder) Domain() *EIP712Domain {
	return ob.domain
}

// BuildOrder builds an order from OrderData
func (ob *OrderBuilder) BuildOrder(data *OrderData) (*Order, error) {
	if err := ob.validateInputs(data); err != nil {
		return nil, err
	}

	selector := data.StaticSelector
	if selector == (Selector{}) {
		selector = NewSelector(data.StaticSignature)
	}

	maker := data.Maker
	if maker == (common.Address{}) && ob.signer != nil {
		maker = AddressOf(ob.signer)
	}

	salt := data.Salt
	if salt == nil {
		var err error
		if salt, err = ob.generateSalt(); err != nil {
			return nil, err
		}
	}

	return &Order{
		Registry:        data.Registry,
		Maker:           maker,
		StaticTarget:    data.StaticTarget,
		StaticSelector:  selector,
		StaticExtradata: common.CopyBytes(data.StaticExtradata),
		MaximumFill:     new(big.Int).Set(data.MaximumFill),
		ListingTime:     data.ListingTime,
		ExpirationTime:  data.ExpirationTime,
		Salt:            new(big.Int).Set(salt),
	}, nil
}

// BuildSignedOrder builds and signs an order
func (ob *OrderBuilder) BuildSignedOrder(data *OrderData) (*SignedOrder, error) {
	order, err := ob.BuildOrder(data)
	if err != nil {
		return nil, err
	}

	signature, err := ob.SignOrder(order)
	if err != nil {
		return nil, err
	}

	return &SignedOrder{
		Order:     order,
		Signature: signature,
	}, nil
}

// SignOrder signs the EIP712 digest of an order
func (ob *OrderBuilder) SignOrder(order *Order) ([]byte, error) {
	if ob.signer == nil {
		return nil, fmt.Errorf("order builder has no signing key")
	}
	if AddressOf(ob.signer) != order.Maker {
		return nil, fmt.Errorf("signing key does not belong to maker %s", order.Maker.Hex())
	}

	fingerprint, err := HashOrder(order)
	if err != nil {
		return nil, err
	}

	return Sign(HashToSign(ob.domain, fingerprint), ob.signer)
}

func (ob *OrderBuilder) validateInputs(data *OrderData) error {
	if data.Maker == (common.Address{}) && ob.signer == nil {
		return fmt.Errorf("maker is required")
	}
	if data.Registry == (common.Address{}) {
		return fmt.Errorf("registry is required")
	}
	if data.StaticTarget == (common.Address{}) {
		return fmt.Errorf("static target is required")
	}
	if data.StaticSelector == (Selector{}) && data.StaticSignature == "" {
		return fmt.Errorf("static selector or signature is required")
	}
	if data.MaximumFill == nil || data.MaximumFill.Sign() <= 0 {
		return fmt.Errorf("maximum fill must be positive")
	}
	if data.ExpirationTime != 0 && data.ExpirationTime <= data.ListingTime {
		return fmt.Errorf("expiration time must be after listing time")
	}
	return nil
}

func (ob *OrderBuilder) generateSalt() (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	salt, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := AddressOf(key)
	digest := crypto.Keccak256Hash([]byte("order"))

	sig, err := Sign(digest, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	v := ECDSAVerifier{}
	assert.True(t, v.Verify(digest, sig, signer))

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	assert.False(t, v.Verify(digest, sig, AddressOf(other)), "wrong signer")
	assert.False(t, v.Verify(crypto.Keccak256Hash([]byte("other")), sig, signer), "wrong digest")
	assert.False(t, v.Verify(digest, sig[:64], signer), "short signature")
	assert.False(t, v.Verify(digest, sig, common.Address{}), "zero signer")
}

func TestVerifyAcceptsRawRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := crypto.Keccak256Hash([]byte("raw"))

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	assert.True(t, ECDSAVerifier{}.Verify(digest, sig, AddressOf(key)))

	sig[64] = 7
	assert.False(t, ECDSAVerifier{}.Verify(digest, sig, AddressOf(key)))
}

func TestVerifyAcceptsPersonalSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := crypto.Keccak256Hash([]byte("personal"))

	sig, err := crypto.Sign(accounts.TextHash(digest.Bytes()), key)
	require.NoError(t, err)
	assert.True(t, ECDSAVerifier{}.Verify(digest, sig, AddressOf(key)))
}

func TestOrderBuilderSignsVerifiableOrders(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	exchange := common.HexToAddress("0x4000000000000000000000000000000000000004")
	builder := NewOrderBuilder(exchange, 50, key)

	signed, err := builder.BuildSignedOrder(&OrderData{
		Registry:        common.HexToAddress("0x01"),
		StaticTarget:    common.HexToAddress("0x02"),
		StaticSignature: "anyERC20ForERC20(bytes,address[7],uint8[2],uint256[6],bytes,bytes)",
		MaximumFill:     big.NewInt(3),
		ExpirationTime:  10000000000,
	})
	require.NoError(t, err)
	assert.Equal(t, AddressOf(key), signed.Order.Maker)
	assert.NotNil(t, signed.Order.Salt)

	fingerprint, err := HashOrder(signed.Order)
	require.NoError(t, err)
	digest := HashToSign(builder.Domain(), fingerprint)
	assert.True(t, ECDSAVerifier{}.Verify(digest, signed.Signature, signed.Order.Maker))
}

func TestOrderBuilderValidatesInputs(t *testing.T) {
	builder := NewOrderBuilder(common.HexToAddress("0x04"), 50, nil)
	base := OrderData{
		Registry:        common.HexToAddress("0x01"),
		Maker:           common.HexToAddress("0x05"),
		StaticTarget:    common.HexToAddress("0x02"),
		StaticSignature: "f()",
		MaximumFill:     big.NewInt(1),
		Salt:            big.NewInt(1),
	}

	_, err := builder.BuildOrder(&base)
	require.NoError(t, err)

	bad := base
	bad.MaximumFill = big.NewInt(0)
	_, err = builder.BuildOrder(&bad)
	assert.Error(t, err)

	bad = base
	bad.ListingTime, bad.ExpirationTime = 10, 5
	_, err = builder.BuildOrder(&bad)
	assert.Error(t, err)

	bad = base
	bad.StaticSignature = ""
	_, err = builder.BuildOrder(&bad)
	assert.Error(t, err)

	order, err := builder.BuildOrder(&base)
	require.NoError(t, err)
	_, err = builder.SignOrder(order)
	assert.Error(t, err, "builder without key cannot sign")
}

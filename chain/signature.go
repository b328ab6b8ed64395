package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an [R || S || V] signature
const SignatureLength = crypto.SignatureLength

// ErrInvalidSignatureLength is returned for signatures that are not 65 bytes long
var ErrInvalidSignatureLength = errors.New("invalid signature length")

// Verifier checks that a signature over a digest was produced by signer.
// Implementations must be pure: the same triple always yields the same answer.
type Verifier interface {
	Verify(digest common.Hash, signature []byte, signer common.Address) bool
}

// ECDSAVerifier verifies secp256k1 signatures over the raw digest or over its
// eth_sign prefixed form ("\x19Ethereum Signed Message:\n32" ++ digest).
type ECDSAVerifier struct{}

// Verify implements Verifier
func (ECDSAVerifier) Verify(digest common.Hash, signature []byte, signer common.Address) bool {
	if signer == (common.Address{}) {
		return false
	}
	if recovered, err := RecoverSigner(digest.Bytes(), signature); err == nil && recovered == signer {
		return true
	}
	recovered, err := RecoverSigner(accounts.TextHash(digest.Bytes()), signature)
	return err == nil && recovered == signer
}

// Sign signs a digest, returning a signature with V in {27, 28}
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	signature, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	// Add recovery ID
	signature[64] += 27

	return signature, nil
}

// RecoverSigner returns the address that produced signature over hash.
// V may be encoded as 0/1 or 27/28.
func RecoverSigner(hash []byte, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, ErrInvalidSignatureLength
	}

	sig := common.CopyBytes(signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid signature recovery id %d", signature[64])
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// AddressOf returns the address controlled by key
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

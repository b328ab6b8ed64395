package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HowToCall selects how a proxy invokes a call target
type HowToCall uint8

const (
	HowToCallCall         HowToCall = 0
	HowToCallDelegateCall HowToCall = 1
)

func (h HowToCall) String() string {
	switch h {
	case HowToCallCall:
		return "call"
	case HowToCallDelegateCall:
		return "delegatecall"
	default:
		return fmt.Sprintf("howtocall(%d)", uint8(h))
	}
}

// Valid reports whether h is a known invocation mode
func (h HowToCall) Valid() bool {
	return h == HowToCallCall || h == HowToCallDelegateCall
}

// Selector is a 4-byte function selector
type Selector [4]byte

// NewSelector returns the selector of a canonical function signature,
// e.g. "transferFrom(address,address,uint256)"
func NewSelector(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// Hex returns the 0x-prefixed hex form of the selector
func (s Selector) Hex() string {
	return hexutil.Encode(s[:])
}

// Bytes returns the selector as a byte slice
func (s Selector) Bytes() []byte {
	return s[:]
}

func (s Selector) String() string {
	return s.Hex()
}

// MarshalText implements encoding.TextMarshaler
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Selector) UnmarshalText(input []byte) error {
	b, err := hexutil.Decode(string(input))
	if err != nil {
		return fmt.Errorf("invalid selector %q: %w", input, err)
	}
	if len(b) != len(s) {
		return fmt.Errorf("invalid selector %q: want 4 bytes, got %d", input, len(b))
	}
	copy(s[:], b)
	return nil
}

// Call describes one settlement call a proxy executes for its owner
type Call struct {
	Target    common.Address `json:"target"`
	HowToCall HowToCall      `json:"howToCall"`
	Data      hexutil.Bytes  `json:"data"`
}

// Order is a maker's signed intent to trade, validated by a static predicate
type Order struct {
	Registry        common.Address `json:"registry"`
	Maker           common.Address `json:"maker"`
	StaticTarget    common.Address `json:"staticTarget"`
	StaticSelector  Selector       `json:"staticSelector"`
	StaticExtradata hexutil.Bytes  `json:"staticExtradata"`
	MaximumFill     *big.Int       `json:"maximumFill"`
	ListingTime     uint64         `json:"listingTime"`
	ExpirationTime  uint64         `json:"expirationTime"`
	Salt            *big.Int       `json:"salt"`
}

// Copy returns a deep copy of the order
func (o *Order) Copy() *Order {
	cpy := *o
	cpy.StaticExtradata = common.CopyBytes(o.StaticExtradata)
	if o.MaximumFill != nil {
		cpy.MaximumFill = new(big.Int).Set(o.MaximumFill)
	}
	if o.Salt != nil {
		cpy.Salt = new(big.Int).Set(o.Salt)
	}
	return &cpy
}

// UnmarshalJSON rejects orders with missing numeric fields
func (o *Order) UnmarshalJSON(input []byte) error {
	type order Order
	var dec order
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.MaximumFill == nil {
		return fmt.Errorf("order: missing maximumFill")
	}
	if dec.Salt == nil {
		return fmt.Errorf("order: missing salt")
	}
	*o = Order(dec)
	return nil
}

// SignedOrder represents an order with its signature
type SignedOrder struct {
	Order     *Order        `json:"order"`
	Signature hexutil.Bytes `json:"signature"`
}

// ERC20 ABI JSON for the transfer surface used by settlement calls
const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "totalSupply",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "mint",
		"outputs": [],
		"type": "function"
	}
]`

// ERC721 ABI JSON
const erc721ABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "getApproved",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "operator", "type": "address"},
			{"name": "approved", "type": "bool"}
		],
		"name": "setApprovalForAll",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "mint",
		"outputs": [],
		"type": "function"
	}
]`

// ERC1155 ABI JSON
const erc1155ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "account", "type": "address"},
			{"name": "id", "type": "uint256"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "operator", "type": "address"},
			{"name": "approved", "type": "bool"}
		],
		"name": "setApprovalForAll",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "id", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "data", "type": "bytes"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "id", "type": "uint256"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "mint",
		"outputs": [],
		"type": "function"
	}
]`

// Atomicizer ABI JSON
const atomicizerABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "addrs", "type": "address[]"},
			{"name": "values", "type": "uint256[]"},
			{"name": "calldataLengths", "type": "uint256[]"},
			{"name": "calldatas", "type": "bytes"}
		],
		"name": "atomicize",
		"outputs": [],
		"type": "function"
	}
]`

var (
	erc20ABI      = mustParseABI("ERC20", erc20ABIJSON)
	erc721ABI     = mustParseABI("ERC721", erc721ABIJSON)
	erc1155ABI    = mustParseABI("ERC1155", erc1155ABIJSON)
	atomicizerABI = mustParseABI("Atomicizer", atomicizerABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}

// GetERC20ABI returns the parsed ERC20 ABI
func GetERC20ABI() abi.ABI {
	return erc20ABI
}

// GetERC721ABI returns the parsed ERC721 ABI
func GetERC721ABI() abi.ABI {
	return erc721ABI
}

// GetERC1155ABI returns the parsed ERC1155 ABI
func GetERC1155ABI() abi.ABI {
	return erc1155ABI
}

// GetAtomicizerABI returns the parsed Atomicizer ABI
func GetAtomicizerABI() abi.ABI {
	return atomicizerABI
}

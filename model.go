package wyvern

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/kaifufi/wyvern-exchange-go/chain"
)

// MatchSide is one order of a match request with its authorization and call
type MatchSide struct {
	Order     *chain.Order  `json:"order"`
	Signature hexutil.Bytes `json:"signature"`
	Call      chain.Call    `json:"call"`

	// Fingerprint, when set, must equal the order's hash
	Fingerprint *common.Hash `json:"fingerprint,omitempty"`
}

// MatchRequest pairs two orders for settlement. Metadata is passed through to events.
type MatchRequest struct {
	First    MatchSide   `json:"first"`
	Second   MatchSide   `json:"second"`
	Metadata common.Hash `json:"metadata"`
}

// MatchResult describes a settled match
type MatchResult struct {
	FirstHash   common.Hash    `json:"firstHash"`
	SecondHash  common.Hash    `json:"secondHash"`
	FirstMaker  common.Address `json:"firstMaker"`
	SecondMaker common.Address `json:"secondMaker"`
	// fill consumed by this match
	FirstFill  *big.Int `json:"firstFill"`
	SecondFill *big.Int `json:"secondFill"`
	// cumulative fill after this match
	FirstTotal  *big.Int       `json:"firstTotal"`
	SecondTotal *big.Int       `json:"secondTotal"`
	Matcher     common.Address `json:"matcher"`
	Metadata    common.Hash    `json:"metadata"`
	Timestamp   uint64         `json:"timestamp"`
}

// OrderState is the ledger record of an order
type OrderState struct {
	Hash      common.Hash    `json:"hash"`
	Maker     common.Address `json:"maker"`
	Filled    *big.Int       `json:"filled"`
	Cancelled bool           `json:"cancelled"`
	Approved  bool           `json:"approved"`
}

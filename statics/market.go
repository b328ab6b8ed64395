package statics

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kaifufi/wyvern-exchange-go/chain"
)

// Canonical signatures of the market predicates
const (
	SigAnyERC20ForERC20   = "anyERC20ForERC20(bytes,address[7],uint8[2],uint256[6],bytes,bytes)"
	SigAnyERC1155ForERC20 = "anyERC1155ForERC20(bytes,address[7],uint8[2],uint256[6],bytes,bytes)"
	SigAnyERC20ForERC1155 = "anyERC20ForERC1155(bytes,address[7],uint8[2],uint256[6],bytes,bytes)"
	SigERC721ForERC20     = "ERC721ForERC20(bytes,address[7],uint8[2],uint256[6],bytes,bytes)"
	SigERC20ForERC721     = "ERC20ForERC721(bytes,address[7],uint8[2],uint256[6],bytes,bytes)"
)

// RegisterMarket installs the market predicates at target
func RegisterMarket(r *Registry, target common.Address) {
	r.Register(target, SigAnyERC20ForERC20, AnyERC20ForERC20)
	r.Register(target, SigAnyERC1155ForERC20, AnyERC1155ForERC20)
	r.Register(target, SigAnyERC20ForERC1155, AnyERC20ForERC1155)
	r.Register(target, SigERC721ForERC20, ERC721ForERC20)
	r.Register(target, SigERC20ForERC721, ERC20ForERC721)
}

// AnyERC20ForERC20 trades one fungible token for another at a fixed price.
// Extradata is (address[2] {give, get}, uint256[2] {num, den}) and the calls
// must satisfy give*num == get*den. The fill is the amount given.
func AnyERC20ForERC20(in Input) (*big.Int, error) {
	if err := directCalls(in); err != nil {
		return nil, err
	}
	tokens, price, err := decodePair(in.Order.Extradata)
	if err != nil {
		return nil, reject("anyERC20ForERC20: %v", err)
	}
	if err := checkTargets(in, tokens); err != nil {
		return nil, err
	}
	num, den, err := positive(price[0], price[1])
	if err != nil {
		return nil, err
	}

	give, err := erc20Amount(in.Order.Call.Data, in.Order.Maker, in.Counter.Maker)
	if err != nil {
		return nil, err
	}
	get, err := erc20Amount(in.Counter.Call.Data, in.Counter.Maker, in.Order.Maker)
	if err != nil {
		return nil, err
	}
	if err := sameProduct(give, num, get, den); err != nil {
		return nil, err
	}
	return give.ToBig(), nil
}

// AnyERC1155ForERC20 sells a semi-fungible token for a fungible one.
// Extradata is (address[2] {erc1155, erc20}, uint256[3] {id, num, den}); the
// calls must satisfy num*erc20 == den*erc1155. The fill is the ERC1155 amount.
func AnyERC1155ForERC20(in Input) (*big.Int, error) {
	if err := directCalls(in); err != nil {
		return nil, err
	}
	tokens, params, err := decodeTriple(in.Order.Extradata)
	if err != nil {
		return nil, reject("anyERC1155ForERC20: %v", err)
	}
	if err := checkTargets(in, tokens); err != nil {
		return nil, err
	}
	num, den, err := positive(params[1], params[2])
	if err != nil {
		return nil, err
	}

	sold, err := erc1155Amount(in.Order.Call.Data, in.Order.Maker, in.Counter.Maker, params[0])
	if err != nil {
		return nil, err
	}
	paid, err := erc20Amount(in.Counter.Call.Data, in.Counter.Maker, in.Order.Maker)
	if err != nil {
		return nil, err
	}
	if err := sameProduct(num, paid, den, sold); err != nil {
		return nil, err
	}
	return sold.ToBig(), nil
}

// AnyERC20ForERC1155 buys a semi-fungible token with a fungible one.
// Extradata is (address[2] {erc20, erc1155}, uint256[3] {id, num, den}); the
// calls must satisfy num*erc1155 == den*erc20. The fill is the ERC20 amount.
func AnyERC20ForERC1155(in Input) (*big.Int, error) {
	if err := directCalls(in); err != nil {
		return nil, err
	}
	tokens, params, err := decodeTriple(in.Order.Extradata)
	if err != nil {
		return nil, reject("anyERC20ForERC1155: %v", err)
	}
	if err := checkTargets(in, tokens); err != nil {
		return nil, err
	}
	num, den, err := positive(params[1], params[2])
	if err != nil {
		return nil, err
	}

	paid, err := erc20Amount(in.Order.Call.Data, in.Order.Maker, in.Counter.Maker)
	if err != nil {
		return nil, err
	}
	bought, err := erc1155Amount(in.Counter.Call.Data, in.Counter.Maker, in.Order.Maker, params[0])
	if err != nil {
		return nil, err
	}
	if err := sameProduct(num, bought, den, paid); err != nil {
		return nil, err
	}
	return paid.ToBig(), nil
}

// ERC721ForERC20 sells one unique token for exactly price fungible tokens.
// Extradata is (address[2] {erc721, erc20}, uint256[2] {tokenId, price}).
// The whole order is consumed.
func ERC721ForERC20(in Input) (*big.Int, error) {
	if err := directCalls(in); err != nil {
		return nil, err
	}
	tokens, params, err := decodePair(in.Order.Extradata)
	if err != nil {
		return nil, reject("ERC721ForERC20: %v", err)
	}
	if err := checkTargets(in, tokens); err != nil {
		return nil, err
	}
	if err := checkERC721(in.Order.Call.Data, in.Order.Maker, in.Counter.Maker, params[0]); err != nil {
		return nil, err
	}
	if err := checkERC20(in.Counter.Call.Data, in.Counter.Maker, in.Order.Maker, params[1]); err != nil {
		return nil, err
	}
	return remaining(in.Order)
}

// ERC20ForERC721 buys one unique token for exactly price fungible tokens.
// Extradata is (address[2] {erc20, erc721}, uint256[2] {tokenId, price}).
// The whole order is consumed.
func ERC20ForERC721(in Input) (*big.Int, error) {
	if err := directCalls(in); err != nil {
		return nil, err
	}
	tokens, params, err := decodePair(in.Order.Extradata)
	if err != nil {
		return nil, reject("ERC20ForERC721: %v", err)
	}
	if err := checkTargets(in, tokens); err != nil {
		return nil, err
	}
	if err := checkERC20(in.Order.Call.Data, in.Order.Maker, in.Counter.Maker, params[1]); err != nil {
		return nil, err
	}
	if err := checkERC721(in.Counter.Call.Data, in.Counter.Maker, in.Order.Maker, params[0]); err != nil {
		return nil, err
	}
	return remaining(in.Order)
}

func directCalls(in Input) error {
	if in.Order.Call.HowToCall != chain.HowToCallCall {
		return reject("call must be a direct call")
	}
	if in.Counter.Call.HowToCall != chain.HowToCallCall {
		return reject("countercall must be a direct call")
	}
	return nil
}

func checkTargets(in Input, tokens [2]common.Address) error {
	if in.Order.Call.Target != tokens[0] {
		return reject("call target %s, want %s", in.Order.Call.Target.Hex(), tokens[0].Hex())
	}
	if in.Counter.Call.Target != tokens[1] {
		return reject("countercall target %s, want %s", in.Counter.Call.Target.Hex(), tokens[1].Hex())
	}
	return nil
}

func positive(num, den *big.Int) (*uint256.Int, *uint256.Int, error) {
	n, err := toUint256(num)
	if err != nil {
		return nil, nil, err
	}
	d, err := toUint256(den)
	if err != nil {
		return nil, nil, err
	}
	if n.IsZero() {
		return nil, nil, reject("numerator must be larger than zero")
	}
	if d.IsZero() {
		return nil, nil, reject("denominator must be larger than zero")
	}
	return n, d, nil
}

// sameProduct requires a*b == c*d without overflow
func sameProduct(a, b, c, d *uint256.Int) error {
	left, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return reject("ratio overflows")
	}
	right, overflow := new(uint256.Int).MulOverflow(c, d)
	if overflow {
		return reject("ratio overflows")
	}
	if !left.Eq(right) {
		return reject("wrong ratio")
	}
	return nil
}

func remaining(order Side) (*big.Int, error) {
	if order.MaximumFill == nil {
		return nil, reject("missing maximum fill")
	}
	left := new(big.Int).Sub(order.MaximumFill, order.Fill)
	if left.Sign() <= 0 {
		return nil, reject("order already filled")
	}
	return left, nil
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, reject("invalid amount")
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, reject("amount overflows uint256")
	}
	return u, nil
}

func erc20Amount(data []byte, from, to common.Address) (*uint256.Int, error) {
	method, args, err := chain.DecodeCall(chain.GetERC20ABI(), data)
	if err != nil {
		return nil, reject("erc20 calldata: %v", err)
	}
	if method.Name != "transferFrom" {
		return nil, reject("erc20 call must be transferFrom, got %s", method.Name)
	}
	if args[0].(common.Address) != from || args[1].(common.Address) != to {
		return nil, reject("erc20 transfer parties mismatch")
	}
	amount, err := toUint256(args[2].(*big.Int))
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, reject("erc20 amount must be positive")
	}
	return amount, nil
}

func checkERC20(data []byte, from, to common.Address, price *big.Int) error {
	amount, err := erc20Amount(data, from, to)
	if err != nil {
		return err
	}
	if amount.ToBig().Cmp(price) != 0 {
		return reject("erc20 amount %s, want %s", amount.ToBig(), price)
	}
	return nil
}

func erc1155Amount(data []byte, from, to common.Address, id *big.Int) (*uint256.Int, error) {
	method, args, err := chain.DecodeCall(chain.GetERC1155ABI(), data)
	if err != nil {
		return nil, reject("erc1155 calldata: %v", err)
	}
	if method.Name != "safeTransferFrom" {
		return nil, reject("erc1155 call must be safeTransferFrom, got %s", method.Name)
	}
	if args[0].(common.Address) != from || args[1].(common.Address) != to {
		return nil, reject("erc1155 transfer parties mismatch")
	}
	if args[2].(*big.Int).Cmp(id) != 0 {
		return nil, reject("erc1155 token id %s, want %s", args[2], id)
	}
	if len(args[4].([]byte)) != 0 {
		return nil, reject("erc1155 transfer data must be empty")
	}
	amount, err := toUint256(args[3].(*big.Int))
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, reject("erc1155 amount must be positive")
	}
	return amount, nil
}

func checkERC721(data []byte, from, to common.Address, tokenID *big.Int) error {
	method, args, err := chain.DecodeCall(chain.GetERC721ABI(), data)
	if err != nil {
		return reject("erc721 calldata: %v", err)
	}
	if method.Name != "transferFrom" {
		return reject("erc721 call must be transferFrom, got %s", method.Name)
	}
	if args[0].(common.Address) != from || args[1].(common.Address) != to {
		return reject("erc721 transfer parties mismatch")
	}
	if args[2].(*big.Int).Cmp(tokenID) != 0 {
		return reject("erc721 token id %s, want %s", args[2], tokenID)
	}
	return nil
}

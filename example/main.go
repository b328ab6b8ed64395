// Example usage of the wyvern exchange: two makers trade an ERC721 item for
// ERC20 tokens on an in-memory ledger.
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	wyvern "github.com/kaifufi/wyvern-exchange-go"
	"github.com/kaifufi/wyvern-exchange-go/assets"
	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/host"
	"github.com/kaifufi/wyvern-exchange-go/state"
	"github.com/kaifufi/wyvern-exchange-go/statics"
)

func main() {
	ctx := context.Background()
	admin := common.HexToAddress("0x00000000000000000000000000000000000ad317")

	h := host.New(state.NewMemDB())
	d, err := wyvern.Deploy(ctx, h, admin, wyvern.DeployOptions{})
	if err != nil {
		log.Fatalf("Failed to deploy exchange: %v", err)
	}

	seller := newClient(ctx, d)
	buyer := newClient(ctx, d)

	nft, err := assets.DeployERC721(h, admin)
	if err != nil {
		log.Fatal(err)
	}
	usd, err := assets.DeployERC20(h, admin)
	if err != nil {
		log.Fatal(err)
	}

	price, err := wyvern.ParseAmount("150", 2)
	if err != nil {
		log.Fatal(err)
	}
	item := big.NewInt(42)
	mint(ctx, h, admin, nft.Address(), chain.GetERC721ABI(), seller.Address(), item)
	mint(ctx, h, admin, usd.Address(), chain.GetERC20ABI(), buyer.Address(), price)

	must(seller.ApproveAll(ctx, nft.Address()))
	must(buyer.ApproveERC20(ctx, usd.Address(), price))

	// Seller lists the item, buyer bids the exact price
	sellData, err := statics.EncodePair(nft.Address(), usd.Address(), item, price)
	must(err)
	sell, err := seller.PlaceOrder(&chain.OrderData{
		StaticSignature: statics.SigERC721ForERC20,
		StaticExtradata: sellData,
		MaximumFill:     big.NewInt(1),
	})
	must(err)

	buyData, err := statics.EncodePair(usd.Address(), nft.Address(), item, price)
	must(err)
	buy, err := buyer.PlaceOrder(&chain.OrderData{
		StaticSignature: statics.SigERC20ForERC721,
		StaticExtradata: buyData,
		MaximumFill:     price,
	})
	must(err)

	give, err := chain.ERC721TransferFrom(seller.Address(), buyer.Address(), item)
	must(err)
	pay, err := chain.ERC20TransferFrom(buyer.Address(), seller.Address(), price)
	must(err)

	// Anyone holding both signed orders can settle them
	result, err := buyer.Match(ctx, &wyvern.MatchRequest{
		First:  wyvern.MatchSide{Order: sell.Order, Signature: sell.Signature, Call: chain.Call{Target: nft.Address(), Data: give}},
		Second: wyvern.MatchSide{Order: buy.Order, Signature: buy.Signature, Call: chain.Call{Target: usd.Address(), Data: pay}},
	})
	if err != nil {
		log.Fatalf("Match failed: %v", err)
	}

	fmt.Printf("Matched %s with %s\n", result.FirstHash.Hex(), result.SecondHash.Hex())
	fmt.Printf("Seller received %s USD\n", wyvern.FormatAmount(result.SecondFill, 2))
}

func newClient(ctx context.Context, d *wyvern.Deployment) *wyvern.Client {
	key, err := crypto.GenerateKey()
	must(err)
	cl, err := wyvern.NewClient(d, key)
	must(err)
	_, err = cl.RegisterProxy(ctx)
	must(err)
	return cl
}

func mint(ctx context.Context, h *host.Host, minter, token common.Address, contract abi.ABI, to common.Address, value *big.Int) {
	payload, err := contract.Pack("mint", to, value)
	must(err)
	must(h.Execute(ctx, minter, func(c *host.Context) error {
		_, err := c.Call(minter, token, payload)
		return err
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

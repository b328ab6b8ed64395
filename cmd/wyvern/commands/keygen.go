package commands

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/kaifufi/wyvern-exchange-go/chain"
)

// KeygenCmd generates a maker key
var KeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new secp256k1 maker key",
	Args:  cobra.NoArgs,
	RunE:  keygen,
}

func keygen(cmd *cobra.Command, args []string) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(struct {
		Address    string `json:"address"`
		PrivateKey string `json:"privateKey"`
	}{
		Address:    chain.AddressOf(key).Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}, "", "\t")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

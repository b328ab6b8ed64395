package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/kaifufi/wyvern-exchange-go/chain"
)

type orderFlags struct {
	exchange  string
	chainID   int64
	key       string
	signature string
}

// NewOrderCmd returns the order command with its hash, sign and verify subcommands
func NewOrderCmd() *cobra.Command {
	flags := &orderFlags{}
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Hash, sign and verify orders read from JSON files (\"-\" for stdin)",
	}
	cmd.PersistentFlags().StringVar(&flags.exchange, "exchange", "", "exchange address the order is signed for")
	cmd.PersistentFlags().Int64Var(&flags.chainID, "chain-id", 0, "chain id (defaults to WYVERN_CHAIN_ID)")

	hashCmd := &cobra.Command{
		Use:   "hash [file]",
		Short: "Print the order fingerprint and the digest its maker signs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, domain, err := flags.load(cmd, args[0])
			if err != nil {
				return err
			}
			hash, err := chain.HashOrder(order)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"fingerprint": hash.Hex(),
				"hashToSign":  chain.HashToSign(domain, hash).Hex(),
			})
		},
	}

	signCmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Sign an order with the maker key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, domain, err := flags.load(cmd, args[0])
			if err != nil {
				return err
			}
			raw, err := hexutil.Decode(flags.key)
			if err != nil {
				return fmt.Errorf("invalid --key: %w", err)
			}
			key, err := crypto.ToECDSA(raw)
			if err != nil {
				return fmt.Errorf("invalid --key: %w", err)
			}
			builder := chain.NewOrderBuilder(domain.VerifyingContract, domain.ChainID.Int64(), key)
			sig, err := builder.SignOrder(order)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chain.SignedOrder{Order: order, Signature: sig})
		},
	}
	signCmd.Flags().StringVar(&flags.key, "key", "", "hex-encoded maker private key")
	_ = signCmd.MarkFlagRequired("key")

	verifyCmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check that a signature over the order recovers to its maker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, domain, err := flags.load(cmd, args[0])
			if err != nil {
				return err
			}
			sig, err := hexutil.Decode(flags.signature)
			if err != nil {
				return fmt.Errorf("invalid --signature: %w", err)
			}
			hash, err := chain.HashOrder(order)
			if err != nil {
				return err
			}
			if !(chain.ECDSAVerifier{}).Verify(chain.HashToSign(domain, hash), sig, order.Maker) {
				return fmt.Errorf("signature does not recover to maker %s", order.Maker.Hex())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	verifyCmd.Flags().StringVar(&flags.signature, "signature", "", "hex-encoded 65-byte signature")
	_ = verifyCmd.MarkFlagRequired("signature")

	cmd.AddCommand(hashCmd, signCmd, verifyCmd)
	return cmd
}

func (f *orderFlags) load(cmd *cobra.Command, path string) (*chain.Order, *chain.EIP712Domain, error) {
	if !common.IsHexAddress(f.exchange) {
		return nil, nil, fmt.Errorf("invalid --exchange address %q", f.exchange)
	}
	chainID := f.chainID
	if chainID == 0 && config != nil {
		chainID = int64(config.ChainID)
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer file.Close()
		r = file
	}
	var order chain.Order
	if err := json.NewDecoder(r).Decode(&order); err != nil {
		return nil, nil, fmt.Errorf("decode order: %w", err)
	}
	domain := chain.NewOrderBuilder(common.HexToAddress(f.exchange), chainID, nil).Domain()
	return &order, domain, nil
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

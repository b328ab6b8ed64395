package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaifufi/wyvern-exchange-go/chain"
	"github.com/kaifufi/wyvern-exchange-go/statics"
)

// SelectorCmd prints the selector of a predicate signature
var SelectorCmd = &cobra.Command{
	Use:   "selector [signature]",
	Short: "Print the 4-byte selector of a function signature, or of every market predicate",
	Args:  cobra.MaximumNArgs(1),
	RunE:  selector,
}

func selector(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		fmt.Fprintln(out, chain.NewSelector(args[0]).Hex())
		return nil
	}
	for _, sig := range []string{
		statics.SigAnyERC20ForERC20,
		statics.SigAnyERC1155ForERC20,
		statics.SigAnyERC20ForERC1155,
		statics.SigERC721ForERC20,
		statics.SigERC20ForERC721,
	} {
		fmt.Fprintf(out, "%s %s\n", chain.NewSelector(sig).Hex(), sig)
	}
	return nil
}

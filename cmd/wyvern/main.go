package main

import (
	"os"

	"github.com/kaifufi/wyvern-exchange-go/cmd/wyvern/commands"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.KeygenCmd,
		commands.SelectorCmd,
		commands.NewOrderCmd(),
		commands.DemoCmd,
		commands.WatchCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

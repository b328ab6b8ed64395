package commands

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wyvern "github.com/kaifufi/wyvern-exchange-go"
)

var (
	config  *wyvern.Config
	logger  *logrus.Entry
	envFile string
)

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
}

// RootCmd is the root command for the wyvern CLI
var RootCmd = &cobra.Command{
	Use:           "wyvern",
	Short:         "Wyvern exchange tooling: keys, selectors, order hashing and signing",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		config, err = wyvern.LoadConfig(envFile)
		if err != nil {
			return err
		}
		logger, err = wyvern.NewLogger(config, os.Stderr)
		return err
	},
}

package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coinchange/cdsusd-vault/internal/config"
	"github.com/coinchange/cdsusd-vault/internal/logger"
)

// main is the entry point for the vault client.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Wallet session and vault gateway for the cDSUSD yield vault",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}

			// Load configuration from environment variables
			if err := config.LoadConfig(); err != nil {
				return err
			}

			logger.Initialize(config.LogLevel, config.LogFormat)
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newResetDBCmd(),
	)
	return root
}

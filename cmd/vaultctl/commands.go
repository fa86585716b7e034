package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coinchange/cdsusd-vault/internal/config"
	"github.com/coinchange/cdsusd-vault/internal/notify"
	"github.com/coinchange/cdsusd-vault/internal/state"
	"github.com/coinchange/cdsusd-vault/internal/vault"
	"github.com/coinchange/cdsusd-vault/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API and keep the wallet session alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := notify.NewHub(0)
			defer hub.Close()

			a, err := newApp(ctx, hub)
			if err != nil {
				return err
			}
			defer a.Close()

			// Startup check: reconnect silently if the wallet already authorized us.
			if err := a.session.Restore(ctx); err != nil {
				log.Warn().Err(err).Msg("Session restore failed")
			}

			webServer := web.NewWebServer(config.WebPort, a.session, a.deposits, hub)
			log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault API")
			return webServer.Start(ctx)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect the wallet and print the vault and account data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, consoleNotifier{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Connect(ctx); err != nil {
				return err
			}

			view := a.session.Snapshot()
			out := map[string]interface{}{"session": view}
			if view.Metadata != nil {
				stats, err := vault.BuildStats(view.Metadata, view.UserData, time.Now())
				if err != nil {
					return err
				}
				out["stats"] = stats
			}
			return printJSON(cmd, out)
		},
	}
}

func newDepositCmd() *cobra.Command {
	var amount, token string

	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Approve and deposit a stablecoin into the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, consoleNotifier{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Connect(ctx); err != nil {
				return err
			}

			d, err := a.deposits.Submit(ctx, amount, token)
			if d != nil {
				out := map[string]interface{}{
					"id":         d.ID.String(),
					"stage":      d.Stage(),
					"approved":   d.Approved(),
					"approve_tx": d.ApproveTx().Hex(),
					"deposit_tx": d.DepositTx().Hex(),
				}
				if printErr := printJSON(cmd, out); printErr != nil {
					return errors.Join(err, printErr)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount to deposit, in token units (e.g. 100.5)")
	cmd.Flags().StringVar(&token, "token", "USDC", "token symbol to deposit")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	var amount string

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw vault shares",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, consoleNotifier{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Connect(ctx); err != nil {
				return err
			}

			receipt, err := a.deposits.Withdraw(ctx, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"tx":       receipt.TxHash.Hex(),
				"block":    receipt.BlockNumber,
				"gas_used": receipt.GasUsed,
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "vault shares to withdraw")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newResetDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-db",
		Short: "Drop and recreate the history tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !config.DB.Enabled() {
				return errors.New("DB_HOST environment variable not set")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := state.InitDB(ctx, dbConfig()); err != nil {
				return err
			}
			defer state.CloseDB()

			if err := state.ResetSchema(ctx); err != nil {
				return err
			}
			log.Info().Msg("Database reset complete")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

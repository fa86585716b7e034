package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/coinchange/cdsusd-vault/internal/config"
	"github.com/coinchange/cdsusd-vault/internal/deposit"
	"github.com/coinchange/cdsusd-vault/internal/session"
	"github.com/coinchange/cdsusd-vault/internal/state"
	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/coinchange/cdsusd-vault/internal/vault"
	"github.com/coinchange/cdsusd-vault/internal/wallet"
)

// app is the wired service graph shared by every command.
type app struct {
	provider wallet.Provider
	gateway  *vault.Client
	session  *session.Manager
	deposits *deposit.Service
}

func newApp(ctx context.Context, notifier session.Notifier) (*app, error) {
	gateway, err := vault.NewClient(config.VaultAddress, config.VaultVariant,
		[]common.Address{config.USDCAddress, config.USDTAddress})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault gateway: %w", err)
	}

	provider, err := openProvider(ctx)
	if err != nil {
		return nil, err
	}

	sessionOpts := []session.Option{
		session.WithPollInterval(config.WalletPollInterval),
		session.WithTxPollInterval(config.TxPollInterval),
	}
	var depositOpts []deposit.Option

	if config.DB.Enabled() {
		if err := openDB(ctx); err != nil {
			if provider != nil {
				provider.Close()
			}
			return nil, err
		}
		sessionOpts = append(sessionOpts, session.WithSnapshotRecorder(func(ctx context.Context, s types.VaultSnapshot) error {
			_, err := state.SaveVaultSnapshot(ctx, s)
			return err
		}))
		depositOpts = append(depositOpts, deposit.WithReceiptRecorder(func(ctx context.Context, r types.ActionReceipt) error {
			_, err := state.SaveActionReceipt(ctx, r)
			return err
		}))
	}

	// A nil provider makes Connect report that no wallet was detected.
	sess := session.NewManager(provider, gateway, notifier, sessionOpts...)
	deposits := deposit.NewService(deposit.NewForm(config.DepositTokens()), gateway, sess, notifier, depositOpts...)

	return &app{
		provider: provider,
		gateway:  gateway,
		session:  sess,
		deposits: deposits,
	}, nil
}

func (a *app) Close() {
	a.session.Close()
	if a.provider != nil {
		a.provider.Close()
	}
	state.CloseDB()
}

// openProvider picks the wallet capability: the keystore wallet when configured, the
// wallet RPC endpoint otherwise. It returns nil when neither is set.
func openProvider(ctx context.Context) (wallet.Provider, error) {
	switch {
	case config.KeystorePath != "":
		p, err := wallet.NewKeystoreProvider(ctx, config.WalletRPC, config.KeystorePath, config.KeystorePassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to open keystore wallet: %w", err)
		}
		log.Info().Str("account", p.Address().Hex()).Msg("Using keystore wallet")
		return p, nil
	case config.WalletRPC != "":
		p, err := wallet.DialRPCProvider(ctx, config.WalletRPC)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to wallet: %w", err)
		}
		return p, nil
	default:
		log.Warn().Msg("No wallet configured (WALLET_RPC_URL / WALLET_KEYSTORE)")
		return nil, nil
	}
}

func dbConfig() state.DBConfig {
	return state.DBConfig{
		Host: config.DB.Host, Port: config.DB.Port,
		User: config.DB.User, Password: config.DB.Password,
		DBName: config.DB.Name, SSLMode: config.DB.SSLMode,
	}
}

func openDB(ctx context.Context) error {
	if err := state.InitDB(ctx, dbConfig()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := state.EnsureSchema(ctx); err != nil {
		state.CloseDB()
		return fmt.Errorf("failed to ensure database schema: %w", err)
	}
	return nil
}

// consoleNotifier prints notifications for the one-shot commands.
type consoleNotifier struct {
	w io.Writer
}

func (n consoleNotifier) Success(msg string) { fmt.Fprintf(n.w, "[success] %s\n", msg) }
func (n consoleNotifier) Error(msg string)   { fmt.Fprintf(n.w, "[error] %s\n", msg) }
func (n consoleNotifier) Info(msg string)    { fmt.Fprintf(n.w, "[info] %s\n", msg) }

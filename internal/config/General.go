package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Mainnet deployments used when the environment does not override them.
const (
	DefaultVaultAddress = "0xA5269A8e31B93Ff27B887B56720A25F844db0529"
	DefaultUSDCAddress  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	DefaultUSDTAddress  = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultAddress is the vault contract this instance reads and deposits into.
	VaultAddress common.Address
	// VaultVariant selects the single-asset or multi-asset contract interface.
	VaultVariant types.VaultVariant

	// USDCAddress and USDTAddress are the stablecoins accepted by the multi-asset vault.
	USDCAddress common.Address
	USDTAddress common.Address

	// KeystorePath is an optional go-ethereum keystore file used as a headless wallet.
	KeystorePath string
	// KeystorePassphrase unlocks KeystorePath.
	KeystorePassphrase string

	// WalletPollInterval is how often the wallet is polled for account/chain changes.
	WalletPollInterval time.Duration
	// TxPollInterval is how often a pending transaction receipt is polled.
	TxPollInterval time.Duration

	// LogLevel and LogFormat configure the global zerolog logger.
	LogLevel  string
	LogFormat string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultAddress, err = getEnvAsAddress("VAULT_ADDRESS", DefaultVaultAddress)
	if err != nil {
		return err
	}

	variant := types.VaultVariant(strings.ToLower(getEnvOrDefault("VAULT_VARIANT", string(types.VaultVariantMulti))))
	if variant != types.VaultVariantSingle && variant != types.VaultVariantMulti {
		return fmt.Errorf("environment variable VAULT_VARIANT must be %q or %q, got: %s",
			types.VaultVariantSingle, types.VaultVariantMulti, variant)
	}
	VaultVariant = variant

	USDCAddress, err = getEnvAsAddress("USDC_ADDRESS", DefaultUSDCAddress)
	if err != nil {
		return err
	}

	USDTAddress, err = getEnvAsAddress("USDT_ADDRESS", DefaultUSDTAddress)
	if err != nil {
		return err
	}

	KeystorePath = getEnvOrDefault("WALLET_KEYSTORE", "")
	KeystorePassphrase = getEnvOrDefault("WALLET_PASSPHRASE", "")

	WalletPollInterval, err = getEnvAsDuration("WALLET_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return err
	}

	TxPollInterval, err = getEnvAsDuration("TX_POLL_INTERVAL", time.Second)
	if err != nil {
		return err
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	// Expand the tilde (~) in the keystore path to the user's home directory.
	if strings.HasPrefix(KeystorePath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		KeystorePath = filepath.Join(home, KeystorePath[2:])
	}

	log.Debug().
		Str("VaultAddress", VaultAddress.Hex()).
		Str("VaultVariant", string(VaultVariant)).
		Bool("KeystoreWallet", KeystorePath != "").
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, err := getEnv(key); err == nil && value != "" {
		return value
	}
	return fallback
}

// getEnvAsAddress retrieves an environment variable as a hex contract address.
func getEnvAsAddress(key, fallback string) (common.Address, error) {
	valueStr := getEnvOrDefault(key, fallback)
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a hex address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration.
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int.
func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

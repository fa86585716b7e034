package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WalletRPC is the JSON-RPC endpoint of the wallet capability. Empty means no wallet
	// is present in this environment.
	WalletRPC string
	// WebPort is the port of the HTTP API.
	WebPort string

	// DB is the optional postgres connection used for refresh history.
	DB DatabaseConfig
)

// DatabaseConfig holds postgres connection parameters. Host empty disables history.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Enabled reports whether a history database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WalletRPC = getEnvOrDefault("WALLET_RPC_URL", "")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	port, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DB = DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", ""),
		Port:     port,
		User:     getEnvOrDefault("DB_USER", ""),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		Name:     getEnvOrDefault("DB_NAME", ""),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	log.Debug().
		Str("WalletRPC", WalletRPC).
		Str("WebPort", WebPort).
		Bool("HistoryDB", DB.Enabled()).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

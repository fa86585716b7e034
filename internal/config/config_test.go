package config

import (
	"testing"
	"time"

	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"VAULT_ADDRESS", "VAULT_VARIANT", "USDC_ADDRESS", "USDT_ADDRESS",
		"WALLET_RPC_URL", "WALLET_POLL_INTERVAL", "TX_POLL_INTERVAL", "DB_HOST", "DB_PORT", "WEB_PORT"} {
		t.Setenv(key, "")
	}

	require.NoError(t, LoadConfig())

	assert.Equal(t, common.HexToAddress(DefaultVaultAddress), VaultAddress)
	assert.Equal(t, types.VaultVariantMulti, VaultVariant)
	assert.Equal(t, common.HexToAddress(DefaultUSDCAddress), USDCAddress)
	assert.Equal(t, 2*time.Second, WalletPollInterval)
	assert.Equal(t, time.Second, TxPollInterval)
	assert.Equal(t, "", WalletRPC)
	assert.Equal(t, "8080", WebPort)
	assert.False(t, DB.Enabled())
	assert.Equal(t, 5432, DB.Port)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("VAULT_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("VAULT_VARIANT", "SINGLE")
	t.Setenv("WALLET_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("WALLET_POLL_INTERVAL", "500ms")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "6543")

	require.NoError(t, LoadConfig())

	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), VaultAddress)
	assert.Equal(t, types.VaultVariantSingle, VaultVariant)
	assert.Equal(t, "http://127.0.0.1:8545", WalletRPC)
	assert.Equal(t, 500*time.Millisecond, WalletPollInterval)
	assert.True(t, DB.Enabled())
	assert.Equal(t, 6543, DB.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"VAULT_ADDRESS":        "not-an-address",
		"VAULT_VARIANT":        "triple",
		"WALLET_POLL_INTERVAL": "-1s",
		"DB_PORT":              "abc",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			assert.Error(t, LoadConfig())
		})
	}
}

func TestDepositTokens(t *testing.T) {
	USDCAddress = common.HexToAddress(DefaultUSDCAddress)
	USDTAddress = common.HexToAddress(DefaultUSDTAddress)

	tokens := DepositTokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, "USDC", tokens[0].Symbol)
	assert.Equal(t, USDCAddress, tokens[0].Address)
	assert.Equal(t, uint8(6), tokens[0].Decimals)
	assert.Equal(t, "5000", tokens[0].Balance.String())
}

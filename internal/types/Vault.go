/*

Snapshots of contract-reported vault values, already decoded into display strings.

VaultMetadata is replaced wholesale on every refresh and never merged field by field.
All token-unit fields use the vault's own reported decimals; fee and APY fields are
decoded from basis points.

*/

package types

import "time"

type VaultVariant string

const (
	// VaultVariantSingle deposits the vault's native unit directly, no approval step.
	VaultVariantSingle VaultVariant = "single"
	// VaultVariantMulti accepts several stablecoins and needs an ERC20 approval first.
	VaultVariantMulti VaultVariant = "multi"
)

type VaultMetadata struct {
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	Decimals      uint8     `json:"decimals"`
	TotalSupply   string    `json:"total_supply"`    // e.g., "1620000.5"
	PricePerShare string    `json:"price_per_share"` // e.g., "1.0045"
	APY           string    `json:"apy"`             // percent, e.g., "4.14"
	DepositFee    string    `json:"deposit_fee"`     // percent
	WithdrawalFee string    `json:"withdrawal_fee"`  // percent
	LastHarvest   time.Time `json:"last_harvest"`

	// Multi-asset variant only.
	StrategyTargetPercentage string `json:"strategy_target_percentage,omitempty"`
	BoringDAOFee             string `json:"boring_dao_fee,omitempty"`
	PerformanceFee           string `json:"performance_fee,omitempty"`
	StrategyAddress          string `json:"strategy_address,omitempty"`
}

type UserVaultData struct {
	Balance   string `json:"balance"`   // vault shares held
	Allowance string `json:"allowance"` // approved spend toward the vault
}

// VaultStats holds the derived values the dashboard cards display.
type VaultStats struct {
	TVL            string `json:"tvl"`        // totalSupply * pricePerShare, 2 decimals
	APY            string `json:"apy"`        // percent
	DailyRate      string `json:"daily_rate"` // APY / 365, 3 decimals
	PricePerShare  string `json:"price_per_share"`
	LastHarvestAgo string `json:"last_harvest_ago"` // e.g., "14 minutes ago"
	YourDeposit    string `json:"your_deposit"`     // balance, 4 decimals
	DepositFee     string `json:"deposit_fee"`
	PerformanceFee string `json:"performance_fee,omitempty"`
}

// VaultSnapshot is one persisted refresh, used for historical TVL/APY charts.
type VaultSnapshot struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Account       string    `json:"account"`
	ChainID       uint64    `json:"chain_id"`
	TVL           string    `json:"tvl"`
	APY           string    `json:"apy"`
	PricePerShare string    `json:"price_per_share"`
	TotalSupply   string    `json:"total_supply"`
}

package vault

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinchange/cdsusd-vault/internal/types"
)

var daysPerYear = decimal.NewFromInt(365)

// BuildStats derives the dashboard values from a metadata snapshot and, when connected,
// the user's vault data. user may be nil.
func BuildStats(meta *types.VaultMetadata, user *types.UserVaultData, now time.Time) (*types.VaultStats, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: metadata is nil", ErrInvalidResponse)
	}

	supply, err := decimal.NewFromString(meta.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("total supply %q: %w", meta.TotalSupply, err)
	}
	pps, err := decimal.NewFromString(meta.PricePerShare)
	if err != nil {
		return nil, fmt.Errorf("price per share %q: %w", meta.PricePerShare, err)
	}
	apy, err := decimal.NewFromString(meta.APY)
	if err != nil {
		return nil, fmt.Errorf("apy %q: %w", meta.APY, err)
	}

	stats := &types.VaultStats{
		TVL:            supply.Mul(pps).StringFixed(2),
		APY:            apy.StringFixed(2),
		DailyRate:      apy.Div(daysPerYear).StringFixed(3),
		PricePerShare:  pps.StringFixed(6),
		LastHarvestAgo: TimeSince(meta.LastHarvest, now),
		YourDeposit:    "0",
		DepositFee:     meta.DepositFee,
		PerformanceFee: meta.PerformanceFee,
	}

	if user != nil {
		balance, err := decimal.NewFromString(user.Balance)
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", user.Balance, err)
		}
		if !balance.IsZero() {
			stats.YourDeposit = balance.StringFixed(4)
		}
	}

	return stats, nil
}

// TimeSince renders the elapsed time as "N minute(s) ago", "N hour(s) ago" or
// "N day(s) ago", truncating to the largest whole unit.
func TimeSince(t, now time.Time) string {
	mins := int64(now.Sub(t) / time.Minute)
	if mins < 0 {
		mins = 0
	}
	if mins < 60 {
		return plural(mins, "minute")
	}
	hours := mins / 60
	if hours < 24 {
		return plural(hours, "hour")
	}
	return plural(hours/24, "day")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s ago", n, unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

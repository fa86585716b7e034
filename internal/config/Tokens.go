/*

Deposit-side token table.

These descriptors feed the token picker and the client-side balance pre-check only. The
balances are display values; the on-chain decimals used for the actual deposit are always
re-read from the token contract.

*/

package config

import (
	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/shopspring/decimal"
)

// DepositTokens returns the tokens offered by the deposit form, resolved against the
// configured stablecoin addresses.
func DepositTokens() []types.Token {
	return []types.Token{
		{
			Symbol:   "USDC",
			Name:     "USD Coin",
			Address:  USDCAddress,
			Decimals: 6,
			Balance:  decimal.NewFromInt(5000),
		},
		{
			Symbol:   "USDT",
			Name:     "Tether USD",
			Address:  USDTAddress,
			Decimals: 6,
			Balance:  decimal.NewFromInt(2500),
		},
	}
}

/*

Token descriptors drive the deposit form's token picker and client-side sufficiency checks.
They are not fetched from chain; the balance is a display value only.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Token struct {
	Symbol   string          `json:"symbol"`   // e.g., "USDC"
	Name     string          `json:"name"`     // e.g., "USD Coin"
	Address  common.Address  `json:"address"`  // ERC20 contract on the vault's chain
	Decimals uint8           `json:"decimals"` // e.g., 6 for USDC
	Balance  decimal.Decimal `json:"balance"`  // display balance used for pre-checks
}

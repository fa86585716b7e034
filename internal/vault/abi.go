package vault

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract method names.
const (
	methodName                     = "name"
	methodSymbol                   = "symbol"
	methodDecimals                 = "decimals"
	methodTotalSupply              = "totalSupply"
	methodBalanceOf                = "balanceOf"
	methodAllowance                = "allowance"
	methodApprove                  = "approve"
	methodDeposit                  = "deposit"
	methodWithdraw                 = "withdraw"
	methodPricePerFullShare        = "getPricePerFullShare"
	methodAPY                      = "getAPY"
	methodDepositFee               = "getDepositFee"
	methodWithdrawalFee            = "getWithdrawalFee"
	methodLastHarvest              = "getLastHarvest"
	methodStrategyTargetPercentage = "getStrategyTargetPercentage"
	methodBoringDAOFee             = "getBoringDAOFee"
	methodPerformanceFee           = "getPerformanceFee"
	methodStrategyAddress          = "getStrategyAddress"
)

// VaultABIJSON is the vault share token plus its yield accessors.
const VaultABIJSON = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getPricePerFullShare","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getAPY","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getDepositFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getWithdrawalFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getLastHarvest","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getStrategyTargetPercentage","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getBoringDAOFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getPerformanceFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getStrategyAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// TokenABIJSON is the ERC20 subset used for stablecoin deposits.
const TokenABIJSON = `[
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	vaultABI = mustParseABI(VaultABIJSON)
	tokenABI = mustParseABI(TokenABIJSON)
)

// VaultABI returns the parsed vault contract interface.
func VaultABI() abi.ABI { return vaultABI }

// TokenABI returns the parsed stablecoin contract interface.
func TokenABI() abi.ABI { return tokenABI }

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("vault: invalid contract ABI: " + err.Error())
	}
	return parsed
}

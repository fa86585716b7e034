package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/coinchange/cdsusd-vault/internal/logger"
	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/coinchange/cdsusd-vault/internal/utils"
	"github.com/coinchange/cdsusd-vault/internal/wallet"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidVaultAddress = errors.New("vault address is invalid")
	ErrInvalidVariant      = errors.New("vault variant is invalid")
	ErrNoStablecoins       = errors.New("multi-asset vault requires at least one stablecoin")
	ErrNoHandle            = errors.New("wallet handle is required")
	ErrMetadataFetchFailed = errors.New("vault metadata fetch failed")
	ErrUserDataFetchFailed = errors.New("user vault data fetch failed")
	ErrTransactionFailed   = errors.New("transaction execution failed")
	ErrInvalidResponse     = errors.New("contract response is invalid")
)

var vaultLogger = logger.GetForComponent("vault_client")

// Client is the live Gateway implementation talking to the deployed contracts.
type Client struct {
	vault       common.Address
	variant     types.VaultVariant
	stablecoins []common.Address
}

var _ Gateway = (*Client)(nil)

// NewClient creates a gateway for the vault at address. Stablecoins are the ERC20
// tokens whose allowances count toward the multi-asset vault; they are ignored for the
// single-asset variant.
func NewClient(address common.Address, variant types.VaultVariant, stablecoins []common.Address) (*Client, error) {
	if address == (common.Address{}) {
		return nil, ErrInvalidVaultAddress
	}
	switch variant {
	case types.VaultVariantSingle:
	case types.VaultVariantMulti:
		if len(stablecoins) == 0 {
			return nil, ErrNoStablecoins
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}

	vaultLogger.Info().
		Str("vault", address.Hex()).
		Str("variant", string(variant)).
		Int("stablecoins", len(stablecoins)).
		Msg("Vault gateway initialized")

	return &Client{
		vault:       address,
		variant:     variant,
		stablecoins: append([]common.Address(nil), stablecoins...),
	}, nil
}

// Address returns the vault contract address.
func (c *Client) Address() common.Address { return c.vault }

// GetVaultMetadata implements Gateway.
func (c *Client) GetVaultMetadata(ctx context.Context, h *wallet.Handle) (*types.VaultMetadata, error) {
	if h == nil {
		return nil, errors.Join(ErrMetadataFetchFailed, ErrNoHandle)
	}

	vault := c.vaultContract(h)

	var (
		name, symbol                                string
		decimals                                    uint8
		totalSupply, pricePerShare                  *big.Int
		apy, depositFee, withdrawalFee, lastHarvest *big.Int
		targetPct, daoFee, performanceFee           *big.Int
		strategy                                    common.Address
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { name, err = callString(gctx, vault, methodName); return })
	g.Go(func() (err error) { symbol, err = callString(gctx, vault, methodSymbol); return })
	g.Go(func() (err error) { decimals, err = callUint8(gctx, vault, methodDecimals); return })
	g.Go(func() (err error) { totalSupply, err = callBig(gctx, vault, methodTotalSupply); return })
	g.Go(func() (err error) { pricePerShare, err = callBig(gctx, vault, methodPricePerFullShare); return })
	g.Go(func() (err error) { apy, err = callBig(gctx, vault, methodAPY); return })
	g.Go(func() (err error) { depositFee, err = callBig(gctx, vault, methodDepositFee); return })
	g.Go(func() (err error) { withdrawalFee, err = callBig(gctx, vault, methodWithdrawalFee); return })
	g.Go(func() (err error) { lastHarvest, err = callBig(gctx, vault, methodLastHarvest); return })
	if c.variant == types.VaultVariantMulti {
		g.Go(func() (err error) { targetPct, err = callBig(gctx, vault, methodStrategyTargetPercentage); return })
		g.Go(func() (err error) { daoFee, err = callBig(gctx, vault, methodBoringDAOFee); return })
		g.Go(func() (err error) { performanceFee, err = callBig(gctx, vault, methodPerformanceFee); return })
		g.Go(func() (err error) { strategy, err = callAddress(gctx, vault, methodStrategyAddress); return })
	}
	if err := g.Wait(); err != nil {
		vaultLogger.Error().Err(err).Str("vault", c.vault.Hex()).Msg("Vault metadata batch failed")
		return nil, errors.Join(ErrMetadataFetchFailed, err)
	}

	meta := &types.VaultMetadata{
		Name:     name,
		Symbol:   symbol,
		Decimals: decimals,
	}

	var err error
	if meta.TotalSupply, err = utils.FormatUnits(totalSupply, decimals); err != nil {
		return nil, errors.Join(ErrMetadataFetchFailed, fmt.Errorf("totalSupply: %w", err))
	}
	if meta.PricePerShare, err = utils.FormatUnits(pricePerShare, decimals); err != nil {
		return nil, errors.Join(ErrMetadataFetchFailed, fmt.Errorf("pricePerShare: %w", err))
	}

	bpFields := []basisPointField{
		{"apy", apy, &meta.APY},
		{"depositFee", depositFee, &meta.DepositFee},
		{"withdrawalFee", withdrawalFee, &meta.WithdrawalFee},
	}
	if c.variant == types.VaultVariantMulti {
		bpFields = append(bpFields,
			basisPointField{"strategyTargetPercentage", targetPct, &meta.StrategyTargetPercentage},
			basisPointField{"boringDAOFee", daoFee, &meta.BoringDAOFee},
			basisPointField{"performanceFee", performanceFee, &meta.PerformanceFee},
		)
		meta.StrategyAddress = strategy.Hex()
	}
	for _, f := range bpFields {
		if *f.dst, err = utils.FormatBasisPoints(f.raw); err != nil {
			return nil, errors.Join(ErrMetadataFetchFailed, fmt.Errorf("%s: %w", f.name, err))
		}
	}

	if !lastHarvest.IsInt64() {
		return nil, errors.Join(ErrMetadataFetchFailed, fmt.Errorf("%w: lastHarvest %s", ErrInvalidResponse, lastHarvest))
	}
	meta.LastHarvest = time.Unix(lastHarvest.Int64(), 0).UTC()

	vaultLogger.Debug().
		Str("symbol", meta.Symbol).
		Str("totalSupply", meta.TotalSupply).
		Str("pricePerShare", meta.PricePerShare).
		Str("apy", meta.APY).
		Msg("Vault metadata fetched")

	return meta, nil
}

// GetUserVaultData implements Gateway.
func (c *Client) GetUserVaultData(ctx context.Context, h *wallet.Handle, account common.Address) (*types.UserVaultData, error) {
	if h == nil {
		return nil, errors.Join(ErrUserDataFetchFailed, ErrNoHandle)
	}

	vault := c.vaultContract(h)

	var (
		balance  *big.Int
		decimals uint8
	)
	allowances := make([]*big.Int, len(c.stablecoins))
	allowanceDecimals := make([]uint8, len(c.stablecoins))
	var vaultAllowance *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { balance, err = callBig(gctx, vault, methodBalanceOf, account); return })
	g.Go(func() (err error) { decimals, err = callUint8(gctx, vault, methodDecimals); return })

	switch c.variant {
	case types.VaultVariantSingle:
		g.Go(func() (err error) {
			vaultAllowance, err = callBig(gctx, vault, methodAllowance, account, c.vault)
			return
		})
	case types.VaultVariantMulti:
		for i, addr := range c.stablecoins {
			i := i
			token := tokenContract(addr, h)
			g.Go(func() (err error) {
				allowances[i], err = callBig(gctx, token, methodAllowance, account, c.vault)
				return
			})
			g.Go(func() (err error) {
				allowanceDecimals[i], err = callUint8(gctx, token, methodDecimals)
				return
			})
		}
	}
	if err := g.Wait(); err != nil {
		vaultLogger.Error().Err(err).Str("account", account.Hex()).Msg("User vault data batch failed")
		return nil, errors.Join(ErrUserDataFetchFailed, err)
	}

	data := &types.UserVaultData{}
	var err error
	if data.Balance, err = utils.FormatUnits(balance, decimals); err != nil {
		return nil, errors.Join(ErrUserDataFetchFailed, fmt.Errorf("balance: %w", err))
	}

	if c.variant == types.VaultVariantSingle {
		if data.Allowance, err = utils.FormatUnits(vaultAllowance, decimals); err != nil {
			return nil, errors.Join(ErrUserDataFetchFailed, fmt.Errorf("allowance: %w", err))
		}
	} else {
		if data.Allowance, err = maxAllowance(allowances, allowanceDecimals); err != nil {
			return nil, errors.Join(ErrUserDataFetchFailed, err)
		}
	}

	vaultLogger.Debug().
		Str("account", account.Hex()).
		Str("balance", data.Balance).
		Str("allowance", data.Allowance).
		Msg("User vault data fetched")

	return data, nil
}

// DepositToVault implements Gateway. On failure the returned Deposit, when non-nil,
// records how far the saga got; an approval that finalized is left in place.
func (c *Client) DepositToVault(ctx context.Context, h *wallet.Handle, amount string, token common.Address) (*Deposit, error) {
	if h == nil {
		return nil, errors.Join(ErrTransactionFailed, ErrNoHandle)
	}

	d := newDeposit(h, c.vault, token)

	switch c.variant {
	case types.VaultVariantSingle:
		decimals, err := callUint8(ctx, c.vaultContract(h), methodDecimals)
		if err != nil {
			return d, d.fail(fmt.Errorf("failed to read vault decimals: %w", err))
		}
		if d.amount, err = utils.ParseUnits(amount, decimals); err != nil {
			return nil, err
		}

	case types.VaultVariantMulti:
		tok := tokenContract(token, h)
		decimals, err := callUint8(ctx, tok, methodDecimals)
		if err != nil {
			return d, d.fail(fmt.Errorf("failed to read token decimals: %w", err))
		}
		if d.amount, err = utils.ParseUnits(amount, decimals); err != nil {
			return nil, err
		}

		if err := d.approve(ctx); err != nil {
			return d, err
		}
	}

	if err := d.submit(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// WithdrawFromVault implements Gateway.
func (c *Client) WithdrawFromVault(ctx context.Context, h *wallet.Handle, amount string) (*PendingTx, error) {
	if h == nil {
		return nil, errors.Join(ErrTransactionFailed, ErrNoHandle)
	}

	decimals, err := callUint8(ctx, c.vaultContract(h), methodDecimals)
	if err != nil {
		return nil, errors.Join(ErrTransactionFailed, fmt.Errorf("failed to read vault decimals: %w", err))
	}
	shares, err := utils.ParseUnits(amount, decimals)
	if err != nil {
		return nil, err
	}

	data, err := vaultABI.Pack(methodWithdraw, shares)
	if err != nil {
		return nil, errors.Join(ErrTransactionFailed, err)
	}
	hash, err := h.SendTransaction(ctx, c.vault, data)
	if err != nil {
		vaultLogger.Error().Err(err).Str("shares", shares.String()).Msg("Withdraw submission failed")
		return nil, errors.Join(ErrTransactionFailed, err)
	}

	vaultLogger.Info().
		Str("txHash", hash.Hex()).
		Str("shares", shares.String()).
		Msg("Withdraw submitted")

	return &PendingTx{Hash: hash, handle: h}, nil
}

type basisPointField struct {
	name string
	raw  *big.Int
	dst  *string
}

func (c *Client) vaultContract(h *wallet.Handle) *bind.BoundContract {
	return bind.NewBoundContract(c.vault, vaultABI, h, nil, nil)
}

func tokenContract(address common.Address, h *wallet.Handle) *bind.BoundContract {
	return bind.NewBoundContract(address, tokenABI, h, nil, nil)
}

// maxAllowance picks the largest allowance after decoding each with its own token's
// decimals, and renders it with those decimals.
func maxAllowance(raw []*big.Int, decimals []uint8) (string, error) {
	best := -1
	var bestValue decimal.Decimal
	for i := range raw {
		v, err := utils.UnitsToDec(raw[i], decimals[i])
		if err != nil {
			return "", fmt.Errorf("allowance: %w", err)
		}
		if best < 0 || v.GreaterThan(bestValue) {
			best, bestValue = i, v
		}
	}
	if best < 0 {
		return utils.FormatUnits(new(big.Int), 0)
	}
	return utils.FormatUnits(raw[best], decimals[best])
}

func call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned no values", ErrInvalidResponse, method)
	}
	return out, nil
}

func callBig(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*big.Int, error) {
	out, err := call(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}
	v := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if v == nil {
		return nil, fmt.Errorf("%w: %s returned nil", ErrInvalidResponse, method)
	}
	return v, nil
}

func callUint8(ctx context.Context, contract *bind.BoundContract, method string) (uint8, error) {
	out, err := call(ctx, contract, method)
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func callString(ctx context.Context, contract *bind.BoundContract, method string) (string, error) {
	out, err := call(ctx, contract, method)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func callAddress(ctx context.Context, contract *bind.BoundContract, method string) (common.Address, error) {
	out, err := call(ctx, contract, method)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

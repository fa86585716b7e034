package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// DefaultReceiptPollInterval is used when a Handle is built without WithPollInterval.
const DefaultReceiptPollInterval = time.Second

var ErrTransactionReverted = errors.New("transaction reverted")

// Handle is the connected wallet capability: reads go through the provider's backend,
// writes are signed by the wallet on behalf of Account.
type Handle struct {
	provider     Provider
	account      common.Address
	chainID      uint64
	pollInterval time.Duration
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithPollInterval sets the receipt polling interval used by WaitMined.
func WithPollInterval(d time.Duration) HandleOption {
	return func(h *Handle) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// NewHandle binds a provider to an account on a chain.
func NewHandle(provider Provider, account common.Address, chainID uint64, opts ...HandleOption) *Handle {
	h := &Handle{
		provider:     provider,
		account:      account,
		chainID:      chainID,
		pollInterval: DefaultReceiptPollInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handle) Account() common.Address { return h.account }

func (h *Handle) ChainID() uint64 { return h.chainID }

func (h *Handle) Provider() Provider { return h.provider }

// WithAccount returns a copy of the handle bound to another account.
func (h *Handle) WithAccount(account common.Address) *Handle {
	cp := *h
	cp.account = account
	return &cp
}

// CodeAt implements bind.ContractCaller.
func (h *Handle) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return h.provider.Backend().CodeAt(ctx, contract, blockNumber)
}

// CallContract implements bind.ContractCaller.
func (h *Handle) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return h.provider.Backend().CallContract(ctx, call, blockNumber)
}

// SendTransaction asks the wallet to sign and submit a contract call from Account.
func (h *Handle) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	args := TransactionArgs{
		From: h.account,
		To:   &to,
		Data: data,
	}

	var hash common.Hash
	if err := h.provider.Request(ctx, &hash, MethodSendTransaction, args); err != nil {
		return common.Hash{}, err
	}
	if hash == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("%w: empty transaction hash", ErrInvalidResponse)
	}

	walletLogger.Info().
		Str("txHash", hash.Hex()).
		Str("from", h.account.Hex()).
		Str("to", to.Hex()).
		Msg("Transaction submitted")

	return hash, nil
}

// WaitMined blocks until the transaction has a receipt. A reverted receipt is returned
// together with ErrTransactionReverted.
func (h *Handle) WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := h.provider.Backend().TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex())
			}
			walletLogger.Debug().
				Str("txHash", hash.Hex()).
				Uint64("gasUsed", receipt.GasUsed).
				Msg("Transaction mined")
			return receipt, nil
		case errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil):
			walletLogger.Trace().Str("txHash", hash.Hex()).Msg("Transaction not yet mined")
		default:
			walletLogger.Warn().Err(err).Str("txHash", hash.Hex()).Msg("Receipt retrieval failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

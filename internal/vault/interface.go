package vault

import (
	"context"

	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/coinchange/cdsusd-vault/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
)

// Gateway defines the operations available against the vault and its stablecoins.
// Implementations hold no per-session state; every call is made through the given
// wallet handle.
type Gateway interface {
	// GetVaultMetadata reads every vault field in one parallel batch. Any failed read
	// fails the whole call; partial metadata is never returned.
	GetVaultMetadata(ctx context.Context, h *wallet.Handle) (*types.VaultMetadata, error)

	// GetUserVaultData reads the account's share balance and its allowance toward the vault.
	GetUserVaultData(ctx context.Context, h *wallet.Handle, account common.Address) (*types.UserVaultData, error)

	// DepositToVault approves (multi-asset only) and submits a deposit. The returned
	// Deposit holds the pending deposit transaction; call Wait before treating it as done.
	DepositToVault(ctx context.Context, h *wallet.Handle, amount string, token common.Address) (*Deposit, error)

	// WithdrawFromVault submits a withdrawal of amount vault shares.
	WithdrawFromVault(ctx context.Context, h *wallet.Handle, amount string) (*PendingTx, error)
}

package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/coinchange/cdsusd-vault/internal/wallet"
)

// DepositStage is a step of the approve-then-deposit saga.
type DepositStage int

const (
	DepositIdle DepositStage = iota
	DepositApproving
	DepositApproved
	DepositDepositing
	DepositComplete
	DepositFailed
)

func (s DepositStage) String() string {
	switch s {
	case DepositIdle:
		return "idle"
	case DepositApproving:
		return "approving"
	case DepositApproved:
		return "approved"
	case DepositDepositing:
		return "depositing"
	case DepositComplete:
		return "complete"
	case DepositFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s DepositStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Deposit tracks one approve-then-deposit write. A Deposit that failed after reaching
// DepositApproved leaves the approval standing on chain.
type Deposit struct {
	ID    uuid.UUID
	Vault common.Address
	Token common.Address

	handle *wallet.Handle
	amount *big.Int

	mu        sync.Mutex
	stage     DepositStage
	approved  bool
	approveTx common.Hash
	depositTx common.Hash
	err       error
}

func newDeposit(h *wallet.Handle, vault, token common.Address) *Deposit {
	return &Deposit{
		ID:     uuid.New(),
		Vault:  vault,
		Token:  token,
		handle: h,
		stage:  DepositIdle,
	}
}

// Stage returns the current saga step.
func (d *Deposit) Stage() DepositStage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

// Approved reports whether an approval finalized during this saga.
func (d *Deposit) Approved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.approved
}

// Amount returns the deposit amount in the token's fixed-point units.
func (d *Deposit) Amount() *big.Int {
	if d.amount == nil {
		return nil
	}
	return new(big.Int).Set(d.amount)
}

// ApproveTx returns the approval transaction hash, zero when approval was skipped.
func (d *Deposit) ApproveTx() common.Hash {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.approveTx
}

// DepositTx returns the deposit transaction hash, zero until it is submitted.
func (d *Deposit) DepositTx() common.Hash {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depositTx
}

// Err returns the failure that moved the saga to DepositFailed.
func (d *Deposit) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Wait blocks until the deposit transaction finalizes and moves the saga to
// DepositComplete or DepositFailed.
func (d *Deposit) Wait(ctx context.Context) (*ethtypes.Receipt, error) {
	d.mu.Lock()
	stage, hash := d.stage, d.depositTx
	d.mu.Unlock()

	switch stage {
	case DepositComplete:
		return d.handle.Provider().Backend().TransactionReceipt(ctx, hash)
	case DepositDepositing:
	default:
		return nil, fmt.Errorf("%w: deposit is %s", ErrTransactionFailed, stage)
	}

	receipt, err := d.handle.WaitMined(ctx, hash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return receipt, d.fail(fmt.Errorf("deposit %s: %w", hash.Hex(), err))
	}

	d.setStage(DepositComplete)
	vaultLogger.Info().
		Str("depositId", d.ID.String()).
		Str("txHash", hash.Hex()).
		Msg("Deposit finalized")

	return receipt, nil
}

func (d *Deposit) approve(ctx context.Context) error {
	d.setStage(DepositApproving)

	data, err := tokenABI.Pack(methodApprove, d.Vault, d.amount)
	if err != nil {
		return d.fail(err)
	}
	hash, err := d.handle.SendTransaction(ctx, d.Token, data)
	if err != nil {
		return d.fail(fmt.Errorf("approve: %w", err))
	}

	d.mu.Lock()
	d.approveTx = hash
	d.mu.Unlock()

	vaultLogger.Info().
		Str("depositId", d.ID.String()).
		Str("token", d.Token.Hex()).
		Str("amount", d.amount.String()).
		Str("txHash", hash.Hex()).
		Msg("Approval submitted")

	if _, err := d.handle.WaitMined(ctx, hash); err != nil {
		return d.fail(fmt.Errorf("approve %s: %w", hash.Hex(), err))
	}

	d.mu.Lock()
	d.approved = true
	d.stage = DepositApproved
	d.mu.Unlock()
	return nil
}

func (d *Deposit) submit(ctx context.Context) error {
	d.setStage(DepositDepositing)

	data, err := vaultABI.Pack(methodDeposit, d.amount)
	if err != nil {
		return d.fail(err)
	}
	hash, err := d.handle.SendTransaction(ctx, d.Vault, data)
	if err != nil {
		return d.fail(fmt.Errorf("deposit: %w", err))
	}

	d.mu.Lock()
	d.depositTx = hash
	d.mu.Unlock()

	vaultLogger.Info().
		Str("depositId", d.ID.String()).
		Str("amount", d.amount.String()).
		Str("txHash", hash.Hex()).
		Bool("approved", d.Approved()).
		Msg("Deposit submitted")

	return nil
}

func (d *Deposit) setStage(stage DepositStage) {
	d.mu.Lock()
	d.stage = stage
	d.mu.Unlock()
}

// fail records err, moves the saga to DepositFailed and returns err wrapped with
// ErrTransactionFailed.
func (d *Deposit) fail(err error) error {
	wrapped := errors.Join(ErrTransactionFailed, err)

	d.mu.Lock()
	from := d.stage
	d.stage = DepositFailed
	d.err = wrapped
	approved := d.approved
	d.mu.Unlock()

	vaultLogger.Error().
		Err(err).
		Str("depositId", d.ID.String()).
		Str("failedAt", from.String()).
		Bool("approvalStanding", approved).
		Msg("Deposit failed")

	return wrapped
}

// PendingTx is a submitted single-phase write.
type PendingTx struct {
	Hash   common.Hash
	handle *wallet.Handle
}

// Wait blocks until the transaction finalizes.
func (p *PendingTx) Wait(ctx context.Context) (*ethtypes.Receipt, error) {
	receipt, err := p.handle.WaitMined(ctx, p.Hash)
	if err != nil && ctx.Err() == nil {
		return receipt, errors.Join(ErrTransactionFailed, err)
	}
	return receipt, err
}

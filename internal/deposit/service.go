package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinchange/cdsusd-vault/internal/logger"
	"github.com/coinchange/cdsusd-vault/internal/metrics"
	"github.com/coinchange/cdsusd-vault/internal/session"
	"github.com/coinchange/cdsusd-vault/internal/types"
	"github.com/coinchange/cdsusd-vault/internal/vault"
	"github.com/coinchange/cdsusd-vault/internal/wallet"
)

var ErrNotConnected = errors.New("wallet is not connected")

var depositLogger = logger.GetForComponent("deposit_service")

// Session is the part of the session manager a submission needs.
type Session interface {
	Handle() *wallet.Handle
	Refresh(ctx context.Context) error
}

// ReceiptRecorder persists the outcome of a deposit or withdrawal.
type ReceiptRecorder func(ctx context.Context, receipt types.ActionReceipt) error

// Option configures a Service.
type Option func(*Service)

// WithReceiptRecorder stores a receipt for every submission that reached the wallet.
func WithReceiptRecorder(rec ReceiptRecorder) Option {
	return func(s *Service) { s.recorder = rec }
}

// Service submits deposits and withdrawals for the connected session. Outcomes are
// reported through the notifier; the returned errors are for logging and the CLI.
type Service struct {
	form     *Form
	gateway  vault.Gateway
	session  Session
	notifier session.Notifier
	recorder ReceiptRecorder
}

// NewService creates a submission service.
func NewService(form *Form, gateway vault.Gateway, sess Session, notifier session.Notifier, opts ...Option) *Service {
	s := &Service{
		form:     form,
		gateway:  gateway,
		session:  sess,
		notifier: notifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Form returns the token table and pre-checks used by Submit.
func (s *Service) Form() *Form { return s.form }

// Submit validates the amount, runs the deposit saga and waits for the deposit to
// finalize. The returned Deposit is nil when nothing was sent to the wallet.
func (s *Service) Submit(ctx context.Context, amount, symbol string) (*vault.Deposit, error) {
	token, value, err := s.form.Validate(amount, symbol)
	if err != nil {
		depositLogger.Warn().Err(err).Str("token", symbol).Msg("Deposit rejected by pre-check")
		s.notifier.Error(rejectionMessage(err))
		return nil, err
	}

	h := s.session.Handle()
	if h == nil {
		s.notifier.Error("Please connect your wallet first")
		return nil, ErrNotConnected
	}

	depositLogger.Info().
		Str("account", h.Account().Hex()).
		Str("token", token.Symbol).
		Str("amount", value.String()).
		Msg("Submitting deposit")

	d, err := s.gateway.DepositToVault(ctx, h, value.String(), token.Address)
	if err == nil {
		_, err = d.Wait(ctx)
	}
	if err != nil {
		stage := vault.DepositFailed
		if d != nil {
			stage = d.Stage()
		}
		metrics.RecordDeposit(stage.String())
		s.notifier.Error(fmt.Sprintf("Deposit of %s %s failed", value, token.Symbol))
		s.record(ctx, depositReceipt(h.Account(), token, value, d, err))
		return d, err
	}

	metrics.RecordDeposit(d.Stage().String())
	s.notifier.Success(fmt.Sprintf("Successfully deposited %s %s", value, token.Symbol))
	s.record(ctx, depositReceipt(h.Account(), token, value, d, nil))
	s.refresh(ctx)
	return d, nil
}

// Withdraw submits a withdrawal of amount vault shares and waits for it to finalize.
func (s *Service) Withdraw(ctx context.Context, amount string) (*ethtypes.Receipt, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil || !value.IsPositive() {
		s.notifier.Error(rejectionMessage(ErrInvalidAmount))
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	h := s.session.Handle()
	if h == nil {
		s.notifier.Error("Please connect your wallet first")
		return nil, ErrNotConnected
	}

	receipt := types.ActionReceipt{
		ReceiptID:  uuid.NewString(),
		ActionType: types.ActionWithdraw,
		Account:    h.Account().Hex(),
		Amount:     value.String(),
	}

	pending, err := s.gateway.WithdrawFromVault(ctx, h, value.String())
	if err == nil {
		receipt.TransactionHashes = []string{pending.Hash.Hex()}
		var mined *ethtypes.Receipt
		if mined, err = pending.Wait(ctx); err == nil {
			metrics.RecordWithdraw("success")
			s.notifier.Success(fmt.Sprintf("Successfully withdrew %s shares", value))
			receipt.Stage = "complete"
			receipt.Success = true
			s.record(ctx, receipt)
			s.refresh(ctx)
			return mined, nil
		}
	}

	depositLogger.Error().Err(err).Str("amount", value.String()).Msg("Withdraw failed")
	metrics.RecordWithdraw("failed")
	s.notifier.Error(fmt.Sprintf("Withdrawal of %s shares failed", value))
	receipt.Stage = "failed"
	receipt.Message = err.Error()
	s.record(ctx, receipt)
	return nil, err
}

func (s *Service) refresh(ctx context.Context) {
	if err := s.session.Refresh(ctx); err != nil {
		depositLogger.Warn().Err(err).Msg("Refresh after write failed")
	}
}

func (s *Service) record(ctx context.Context, receipt types.ActionReceipt) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder(ctx, receipt); err != nil {
		depositLogger.Warn().Err(err).Str("receiptId", receipt.ReceiptID).Msg("Failed to record action receipt")
	}
}

func depositReceipt(account common.Address, token types.Token, value decimal.Decimal, d *vault.Deposit, err error) types.ActionReceipt {
	receipt := types.ActionReceipt{
		ReceiptID:  uuid.NewString(),
		ActionType: types.ActionDeposit,
		Account:    account.Hex(),
		Token:      token.Address.Hex(),
		Amount:     value.String(),
		Stage:      vault.DepositFailed.String(),
		Success:    err == nil,
	}
	if err != nil {
		receipt.Message = err.Error()
	}
	if d == nil {
		return receipt
	}

	receipt.ReceiptID = d.ID.String()
	receipt.Stage = d.Stage().String()
	for _, hash := range []common.Hash{d.ApproveTx(), d.DepositTx()} {
		if hash != (common.Hash{}) {
			receipt.TransactionHashes = append(receipt.TransactionHashes, hash.Hex())
		}
	}
	return receipt
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient balance"
	case errors.Is(err, ErrUnknownToken):
		return "Please select a supported token"
	default:
		return "Please enter a valid amount"
	}
}

// Package deposit holds the client-side deposit checks and the submission flow that
// runs the vault's approve-then-deposit saga on behalf of the connected session.
package deposit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coinchange/cdsusd-vault/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidAmount       = errors.New("please enter a valid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownToken        = errors.New("unknown deposit token")
	ErrInvalidFee          = errors.New("deposit fee is invalid")
)

var (
	hundred      = decimal.NewFromInt(100)
	smallBalance = decimal.RequireFromString("0.001")
)

// Form is the deposit form's token table and pre-checks. Nothing here touches the
// network.
type Form struct {
	tokens []types.Token
}

// NewForm creates a form offering tokens, in display order.
func NewForm(tokens []types.Token) *Form {
	return &Form{tokens: append([]types.Token(nil), tokens...)}
}

// Tokens returns the offered tokens.
func (f *Form) Tokens() []types.Token {
	return append([]types.Token(nil), f.tokens...)
}

// Token looks a token up by symbol, case-insensitively.
func (f *Form) Token(symbol string) (types.Token, error) {
	for _, t := range f.tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return types.Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
}

// Validate checks amount against the selected token's known balance. It returns the
// token and the parsed amount when the deposit may be submitted.
func (f *Form) Validate(amount, symbol string) (types.Token, decimal.Decimal, error) {
	token, err := f.Token(symbol)
	if err != nil {
		return types.Token{}, decimal.Zero, err
	}

	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return token, decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !value.IsPositive() {
		return token, decimal.Zero, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, value)
	}
	if !value.Equal(value.Truncate(int32(token.Decimals))) {
		return token, decimal.Zero, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, value, token.Decimals)
	}
	if value.GreaterThan(token.Balance) {
		return token, decimal.Zero, fmt.Errorf("%w: %s %s exceeds balance %s", ErrInsufficientBalance, value, token.Symbol, token.Balance)
	}

	return token, value, nil
}

// FormatBalance renders a balance the way the form shows it: eight decimals for dust,
// four otherwise.
func FormatBalance(balance decimal.Decimal) string {
	if balance.LessThan(smallBalance) {
		return balance.StringFixed(8)
	}
	return balance.StringFixed(4)
}

// AmountForPercentage returns the slider amount for percent of balance. percent is
// clamped to 0..100.
func AmountForPercentage(balance decimal.Decimal, percent int) string {
	percent = clampPercent(percent)
	return FormatBalance(balance.Mul(decimal.NewFromInt(int64(percent))).Div(hundred))
}

func clampPercent(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return percent
}

// PercentageForAmount returns the slider position for amount, capped at 100. An
// unparsable amount or an empty balance yields 0.
func PercentageForAmount(amount string, balance decimal.Decimal) int {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || !value.IsPositive() || !balance.IsPositive() {
		return 0
	}
	pct := value.Div(balance).Mul(hundred)
	if pct.GreaterThan(hundred) {
		return 100
	}
	return int(pct.IntPart())
}

// Quote returns the amount credited after the deposit fee, given in percent.
func Quote(amount decimal.Decimal, depositFeePercent string) (decimal.Decimal, error) {
	if depositFeePercent == "" {
		return amount, nil
	}
	fee, err := decimal.NewFromString(depositFeePercent)
	if err != nil || fee.IsNegative() || fee.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidFee, depositFeePercent)
	}
	return amount.Mul(hundred.Sub(fee)).Div(hundred), nil
}

// Preview is what the form shows under the amount field.
type Preview struct {
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Percentage int    `json:"percentage"`
	Balance    string `json:"balance"`
	DepositFee string `json:"deposit_fee,omitempty"`
	Receive    string `json:"receive,omitempty"`
	Valid      bool   `json:"valid"`
	Message    string `json:"message,omitempty"`
}

// Preview positions the slider for amount and quotes what the vault credits after
// depositFeePercent. An amount that fails validation is not an error: the preview
// carries the rejection message instead of a quote.
func (f *Form) Preview(symbol, amount, depositFeePercent string) (Preview, error) {
	token, err := f.Token(symbol)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{
		Token:      token.Symbol,
		Amount:     strings.TrimSpace(amount),
		Percentage: PercentageForAmount(amount, token.Balance),
		Balance:    FormatBalance(token.Balance),
		DepositFee: depositFeePercent,
	}

	_, value, err := f.Validate(amount, token.Symbol)
	if err != nil {
		p.Message = rejectionMessage(err)
		return p, nil
	}

	receive, err := Quote(value, depositFeePercent)
	if err != nil {
		return Preview{}, err
	}
	p.Valid = true
	p.Receive = receive.String()
	return p, nil
}

// PreviewPercentage is Preview for a slider position instead of a typed amount.
func (f *Form) PreviewPercentage(symbol string, percent int, depositFeePercent string) (Preview, error) {
	token, err := f.Token(symbol)
	if err != nil {
		return Preview{}, err
	}

	p, err := f.Preview(token.Symbol, AmountForPercentage(token.Balance, percent), depositFeePercent)
	if err != nil {
		return Preview{}, err
	}
	p.Percentage = clampPercent(percent)
	return p, nil
}

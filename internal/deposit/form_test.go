package deposit

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinchange/cdsusd-vault/internal/types"
)

var (
	testUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testUSDT = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
)

func testTokens() []types.Token {
	return []types.Token{
		{Symbol: "USDC", Name: "USD Coin", Address: testUSDC, Decimals: 6, Balance: decimal.NewFromInt(5000)},
		{Symbol: "USDT", Name: "Tether USD", Address: testUSDT, Decimals: 6, Balance: decimal.NewFromInt(2500)},
	}
}

func TestValidate(t *testing.T) {
	form := NewForm(testTokens())

	tests := []struct {
		name    string
		amount  string
		symbol  string
		want    string
		wantErr error
	}{
		{name: "valid", amount: "100.5", symbol: "USDC", want: "100.5"},
		{name: "whole balance", amount: "5000", symbol: "USDC", want: "5000"},
		{name: "lowercase symbol", amount: "1", symbol: "usdt", want: "1"},
		{name: "surrounding spaces", amount: " 2.25 ", symbol: "USDC", want: "2.25"},
		{name: "trailing zeros beyond decimals", amount: "1.50000000", symbol: "USDC", want: "1.5"},
		{name: "zero", amount: "0", symbol: "USDC", wantErr: ErrInvalidAmount},
		{name: "negative", amount: "-5", symbol: "USDC", wantErr: ErrInvalidAmount},
		{name: "empty", amount: "", symbol: "USDC", wantErr: ErrInvalidAmount},
		{name: "not a number", amount: "abc", symbol: "USDC", wantErr: ErrInvalidAmount},
		{name: "too precise", amount: "1.0000001", symbol: "USDC", wantErr: ErrInvalidAmount},
		{name: "exceeds balance", amount: "10000", symbol: "USDC", wantErr: ErrInsufficientBalance},
		{name: "exceeds smaller balance", amount: "2500.01", symbol: "USDT", wantErr: ErrInsufficientBalance},
		{name: "unknown token", amount: "1", symbol: "DAI", wantErr: ErrUnknownToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, value, err := form.Validate(tt.amount, tt.symbol)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, value.String())
			assert.NotEqual(t, common.Address{}, token.Address)
		})
	}
}

func TestForm_TokensAreCopied(t *testing.T) {
	form := NewForm(testTokens())

	tokens := form.Tokens()
	tokens[0].Symbol = "XXX"

	_, err := form.Token("USDC")
	assert.NoError(t, err)
	assert.Len(t, form.Tokens(), 2)
}

func TestFormatBalance(t *testing.T) {
	assert.Equal(t, "5000.0000", FormatBalance(decimal.NewFromInt(5000)))
	assert.Equal(t, "0.1250", FormatBalance(decimal.RequireFromString("0.125")))
	assert.Equal(t, "0.00050000", FormatBalance(decimal.RequireFromString("0.0005")))
}

func TestAmountForPercentage(t *testing.T) {
	balance := decimal.NewFromInt(5000)

	tests := []struct {
		percent int
		want    string
	}{
		{0, "0.00000000"},
		{25, "1250.0000"},
		{50, "2500.0000"},
		{100, "5000.0000"},
		{150, "5000.0000"},
		{-10, "0.00000000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AmountForPercentage(balance, tt.percent), "percent %d", tt.percent)
	}
}

func TestPercentageForAmount(t *testing.T) {
	balance := decimal.NewFromInt(5000)

	assert.Equal(t, 25, PercentageForAmount("1250", balance))
	assert.Equal(t, 33, PercentageForAmount("1666.66", balance))
	assert.Equal(t, 100, PercentageForAmount("10000", balance))
	assert.Equal(t, 0, PercentageForAmount("abc", balance))
	assert.Equal(t, 0, PercentageForAmount("-1", balance))
	assert.Equal(t, 0, PercentageForAmount("10", decimal.Zero))
}

func TestQuote(t *testing.T) {
	amount := decimal.NewFromInt(1000)

	got, err := Quote(amount, "0.10")
	require.NoError(t, err)
	assert.Equal(t, "999", got.String())

	got, err = Quote(amount, "")
	require.NoError(t, err)
	assert.True(t, got.Equal(amount))

	_, err = Quote(amount, "150")
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, err = Quote(amount, "fee")
	assert.ErrorIs(t, err, ErrInvalidFee)
}

func TestPreview(t *testing.T) {
	form := NewForm(testTokens())

	p, err := form.Preview("usdc", "100", "0.10")
	require.NoError(t, err)
	assert.Equal(t, Preview{
		Token:      "USDC",
		Amount:     "100",
		Percentage: 2,
		Balance:    "5000.0000",
		DepositFee: "0.10",
		Receive:    "99.9",
		Valid:      true,
	}, p)

	p, err = form.Preview("USDT", "100", "")
	require.NoError(t, err)
	assert.Equal(t, "100", p.Receive)
	assert.Equal(t, 4, p.Percentage)
}

func TestPreview_RejectedAmountCarriesMessage(t *testing.T) {
	form := NewForm(testTokens())

	p, err := form.Preview("USDT", "3000", "0.10")
	require.NoError(t, err)
	assert.False(t, p.Valid)
	assert.Equal(t, "Insufficient balance", p.Message)
	assert.Equal(t, 100, p.Percentage)
	assert.Empty(t, p.Receive)

	p, err = form.Preview("USDC", "", "0.10")
	require.NoError(t, err)
	assert.False(t, p.Valid)
	assert.Equal(t, "Please enter a valid amount", p.Message)
}

func TestPreview_Errors(t *testing.T) {
	form := NewForm(testTokens())

	_, err := form.Preview("DAI", "1", "")
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = form.Preview("USDC", "1", "fee")
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, err = form.PreviewPercentage("DAI", 50, "")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestPreviewPercentage(t *testing.T) {
	form := NewForm(testTokens())

	p, err := form.PreviewPercentage("USDC", 50, "0.10")
	require.NoError(t, err)
	assert.Equal(t, "2500.0000", p.Amount)
	assert.Equal(t, 50, p.Percentage)
	assert.Equal(t, "2497.5", p.Receive)
	assert.True(t, p.Valid)

	p, err = form.PreviewPercentage("USDT", 150, "")
	require.NoError(t, err)
	assert.Equal(t, "2500.0000", p.Amount)
	assert.Equal(t, 100, p.Percentage)
	assert.Equal(t, "2500", p.Receive)

	p, err = form.PreviewPercentage("USDT", 0, "")
	require.NoError(t, err)
	assert.False(t, p.Valid)
	assert.Equal(t, 0, p.Percentage)
}

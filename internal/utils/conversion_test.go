package utils

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals uint8
		want     string
	}{
		{"fraction with 6 decimals", "1.5", 6, "1500000"},
		{"whole with 18 decimals", "2", 18, "2000000000000000000"},
		{"leading dot", ".25", 6, "250000"},
		{"trailing dot", "3.", 6, "3000000"},
		{"leading zeros", "007.1", 2, "710"},
		{"zero", "0", 6, "0"},
		{"zero decimals", "42", 0, "42"},
		{"full precision", "0.000001", 6, "1"},
		{"24 decimals", "1.5", 24, "1500000000000000000000000"},
		{"24 decimals smallest unit", "0.000000000000000000000001", 24, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.value, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseUnits_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals uint8
		wantErr  error
	}{
		{"empty", "", 6, ErrInvalidAmount},
		{"dot only", ".", 6, ErrInvalidAmount},
		{"letters", "abc", 6, ErrInvalidAmount},
		{"two dots", "1.2.3", 6, ErrInvalidAmount},
		{"negative", "-1", 6, ErrAmountNegative},
		{"too precise", "1.1234567", 6, ErrFractionTooPrecise},
		{"fraction with zero decimals", "1.5", 0, ErrFractionTooPrecise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUnits(tt.value, tt.decimals)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   int64
		decimals uint8
		want     string
	}{
		{1500000, 6, "1.5"},
		{1000000, 6, "1.0"},
		{0, 6, "0.0"},
		{1, 6, "0.000001"},
		{123456789, 0, "123456789.0"},
		{1, 24, "0.000000000000000000000001"},
	}

	for _, tt := range tests {
		got, err := FormatUnits(big.NewInt(tt.amount), tt.decimals)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := FormatUnits(nil, 6)
	assert.ErrorIs(t, err, ErrAmountNil)
	_, err = FormatUnits(big.NewInt(-1), 6)
	assert.ErrorIs(t, err, ErrAmountNegative)

	got, err := FormatUnits(new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil), 30)
	require.NoError(t, err)
	assert.Equal(t, "1.0", got)
}

func TestUnitsRoundTrip(t *testing.T) {
	amounts := []string{"1.5", "0.000001", "5000", "1234.567891", "0.1"}
	for _, decimals := range []uint8{6, 8, 18, 24} {
		for _, amount := range amounts {
			raw, err := ParseUnits(amount, decimals)
			require.NoError(t, err)

			back, err := FormatUnits(raw, decimals)
			require.NoError(t, err)

			want := decimal.RequireFromString(amount)
			got := decimal.RequireFromString(back)
			assert.True(t, want.Equal(got), "decimals=%d amount=%s got=%s", decimals, amount, back)
		}
	}
}

func TestUnitsRoundTrip_ZeroDecimals(t *testing.T) {
	for _, amount := range []string{"0", "1", "42", "1000000"} {
		raw, err := ParseUnits(amount, 0)
		require.NoError(t, err)
		assert.Equal(t, amount, raw.String())

		back, err := FormatUnits(raw, 0)
		require.NoError(t, err)
		assert.Equal(t, amount+".0", back)
	}
}

func TestFormatBasisPoints(t *testing.T) {
	tests := []struct {
		bp   int64
		want string
	}{
		{414, "4.14"},
		{0, "0.00"},
		{5, "0.05"},
		{100, "1.00"},
		{1000, "10.00"},
		{9550, "95.50"},
	}

	for _, tt := range tests {
		got, err := FormatBasisPoints(big.NewInt(tt.bp))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBasisPointsRoundTrip(t *testing.T) {
	percents := []string{"4.14", "0.01", "0", "12.5", "99.99", "3.875"}
	for _, p := range percents {
		percent := decimal.RequireFromString(p)
		bp := percent.Mul(decimal.NewFromInt(100)).Round(0).BigInt()

		got, err := FormatBasisPoints(bp)
		require.NoError(t, err)
		assert.Equal(t, percent.StringFixed(2), got)
	}
}

func TestUnitsToDec(t *testing.T) {
	usdc, err := UnitsToDec(big.NewInt(2500000), 6)
	require.NoError(t, err)
	dai, err := UnitsToDec(new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)), 18)
	require.NoError(t, err)

	assert.True(t, usdc.GreaterThan(dai))
	assert.Equal(t, "2.5", usdc.String())

	wide, err := UnitsToDec(big.NewInt(3), 24)
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000000000003", wide.String())
}

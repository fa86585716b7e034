/*
This file contains the fixed-point codec used for every amount that crosses the contract
boundary. Conversions always take the decimal precision the token or vault contract reports;
nothing here assumes 18 or 6.
*/

package utils

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNil          = errors.New("amount is nil")
	ErrAmountNegative     = errors.New("amount is negative")
	ErrInvalidAmount      = errors.New("amount is not a valid decimal number")
	ErrFractionTooPrecise = errors.New("fractional component exceeds decimals")
	ErrAmountOverflow     = errors.New("amount exceeds 256 bits")
)

var amountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// FormatUnits renders a fixed-point on-chain integer as a decimal string.
// Whole values keep a trailing ".0", e.g. 1000000 with 6 decimals is "1.0".
func FormatUnits(amount *big.Int, decimals uint8) (string, error) {
	dec, err := UnitsToDec(amount, decimals)
	if err != nil {
		return "", err
	}

	out := dec.String()
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out, nil
}

// ParseUnits converts a human-readable decimal string into its fixed-point integer form.
// Inputs with more fractional digits than decimals are rejected rather than rounded.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "-") {
		return nil, ErrAmountNegative
	}
	if value == "" || value == "." || !amountPattern.MatchString(value) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has %d fractional digits, token has %d decimals",
			ErrFractionTooPrecise, value, len(frac), decimals)
	}
	if whole == "" {
		whole = "0"
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		digits = "0"
	}
	result, ok := sdkmath.NewIntFromString(digits)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAmountOverflow, value)
	}
	return result.BigInt(), nil
}

// FormatBasisPoints decodes a basis-point integer into a percent with two decimals,
// e.g. 414 is "4.14".
func FormatBasisPoints(bp *big.Int) (string, error) {
	if bp == nil {
		return "", ErrAmountNil
	}
	if bp.Sign() < 0 {
		return "", ErrAmountNegative
	}

	value := sdkmath.NewIntFromBigInt(bp)
	return fmt.Sprintf("%s.%02d", value.QuoRaw(100).String(), value.ModRaw(100).Int64()), nil
}

// UnitsToDec returns the fixed-point integer as an exact decimal, for comparisons across
// tokens with different precisions. Any precision the contract reports is accepted.
func UnitsToDec(amount *big.Int, decimals uint8) (decimal.Decimal, error) {
	if amount == nil {
		return decimal.Zero, ErrAmountNil
	}
	if amount.Sign() < 0 {
		return decimal.Zero, ErrAmountNegative
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)), nil
}

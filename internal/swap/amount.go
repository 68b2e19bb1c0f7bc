package swap

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errNotANumber = errors.New("amount is not a number")
	errNegative   = errors.New("amount is negative")
)

// ParseAmount converts user-entered text to an integer amount in the
// token's smallest unit. A comma is accepted as the decimal separator.
// Excess precision is truncated, never rounded up: rounding up a
// max-balance input would produce a transaction the wallet cannot fund.
// maxDecimals caps input precision below the token's own (display
// inputs carry at most 10 fractional digits in the original interface).
func ParseAmount(text string, decimals, maxDecimals int) (*big.Int, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	if text == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, errNotANumber
	}
	if d.IsNegative() {
		return nil, errNegative
	}
	prec := decimals
	if maxDecimals > 0 && maxDecimals < prec {
		prec = maxDecimals
	}
	return d.Truncate(int32(prec)).Shift(int32(decimals)).BigInt(), nil
}

// FormatAmount renders a smallest-unit integer as plain decimal text.
// Zero renders as the empty string: a cleared field, not "0".
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil || amount.Sign() == 0 {
		return ""
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// AmountToFloat is the lossy display conversion used for USD estimates.
func AmountToFloat(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(amount, -int32(decimals)).Float64()
	return f
}

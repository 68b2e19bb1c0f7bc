package swap

import "math/big"

// ValidationState is derived per read from the amount pair, the wallet
// balances/allowances and the quote. It is never persisted.
type ValidationState int

const (
	Ok ValidationState = iota
	NotANumber
	Negative
	InsufficientBalance
	ExceedsAllowance
	NoLiquidity
	InternalError
)

func (v ValidationState) String() string {
	switch v {
	case Ok:
		return "ok"
	case NotANumber:
		return "not_a_number"
	case Negative:
		return "negative"
	case InsufficientBalance:
		return "insufficient_balance"
	case ExceedsAllowance:
		return "exceeds_allowance"
	case NoLiquidity:
		return "no_liquidity"
	default:
		return "internal_error"
	}
}

// Blocking reports whether the state forbids committing a transaction.
// All blocking states are computed locally; no network call is needed to
// reject bad input.
func (v ValidationState) Blocking() bool { return v != Ok }

// validate computes the state for the current sell amount against the
// wallet. balance and allowance may be nil when unknown (absence of data
// is "unknown", not zero, so it does not fail the check).
func validate(parseErr error, sellAmount, balance, allowance *big.Int, hasQuote, wrapPair, userPresent bool) ValidationState {
	switch parseErr {
	case nil:
	case errNotANumber:
		return NotANumber
	case errNegative:
		return Negative
	default:
		return InternalError
	}
	if !hasQuote && !wrapPair {
		if userPresent {
			return NoLiquidity
		}
		return Ok
	}
	if sellAmount == nil {
		return Ok
	}
	if balance != nil && sellAmount.Cmp(balance) > 0 {
		return InsufficientBalance
	}
	if allowance != nil && sellAmount.Cmp(allowance) > 0 {
		return ExceedsAllowance
	}
	return Ok
}

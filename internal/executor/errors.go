package executor

import (
	"errors"
	"strings"
)

// ErrQuoteExpired aborts a commit whose order would expire before the
// transaction can plausibly confirm. Nothing has touched the chain yet.
var ErrQuoteExpired = errors.New("quote expired before submission")

// ErrBusy rejects a commit while another transaction is in flight.
var ErrBusy = errors.New("transaction already in flight")

// ErrSellExceedsBalance aborts a commit whose sell amount is above the
// live balance read at submit time. Submitting anyway would revert
// on-chain and still cost the user gas.
var ErrSellExceedsBalance = errors.New("sell amount exceeds balance")

// failureText maps low-level submission errors to the short operator
// strings surfaced in state frames and logs.
func failureText(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, ErrQuoteExpired), strings.Contains(msg, "order expired"):
		return "quote expired"
	case errors.Is(err, ErrSellExceedsBalance):
		return "sell amount exceeds balance"
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "user rejected"):
		return "rejected by signer"
	case strings.Contains(msg, "insufficient funds"):
		return "insufficient funds for gas"
	default:
		return "transaction failed"
	}
}

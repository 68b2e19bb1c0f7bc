package executor

import (
	"math/big"

	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

// TxState tracks the single in-flight transaction through its lifetime.
// Terminal states (Processed, Failed) are held for a display interval
// and then auto-reset to Idle.
type TxState int

const (
	StateIdle TxState = iota
	StateAwaitingWallet
	StateProcessing
	StateProcessed
	StateFailed
)

func (s TxState) String() string {
	switch s {
	case StateAwaitingWallet:
		return "awaitingWallet"
	case StateProcessing:
		return "processing"
	case StateProcessed:
		return "processed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Action is the on-chain call a commit resolves to.
type Action int

const (
	ActionFill Action = iota
	ActionApprove
	ActionWrap
	ActionUnwrap
)

func (a Action) String() string {
	switch a {
	case ActionApprove:
		return "approve"
	case ActionWrap:
		return "wrap"
	case ActionUnwrap:
		return "unwrap"
	default:
		return "fill"
	}
}

// Classify decides which call a commit needs. Wrap pairs settle against
// the wrapped-native contract and never need an allowance. For order
// fills an allowance short of the sell amount means the exchange must be
// approved first; the swap itself is re-committed afterwards.
func Classify(pair token.Pair, wrappedNative string, sellAmount, allowance *big.Int) Action {
	switch {
	case pair.IsWrap(wrappedNative):
		return ActionWrap
	case pair.IsUnwrap(wrappedNative):
		return ActionUnwrap
	case allowance != nil && sellAmount != nil && allowance.Cmp(sellAmount) < 0:
		return ActionApprove
	default:
		return ActionFill
	}
}

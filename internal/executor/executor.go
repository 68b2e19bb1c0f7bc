package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/chain"
	"github.com/ZigZagExchange/zigzag-swap/internal/metrics"
	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

type chainIface interface {
	HasSigner() bool
	Sender() common.Address
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error)
	Approve(ctx context.Context, tokenAddr common.Address, gasLimit uint64) (*types.Transaction, error)
	FillOrder(ctx context.Context, order chain.Order, signature []byte, fillAmount *big.Int, gasLimit uint64) (*types.Transaction, error)
	Wrap(ctx context.Context, value *big.Int, gasLimit uint64) (*types.Transaction, error)
	Unwrap(ctx context.Context, amount *big.Int, gasLimit uint64) (*types.Transaction, error)
	WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error)
}

// Freezer is anything that must stop refreshing while a transaction is
// in flight, so the committed amounts cannot shift under the user.
type Freezer interface {
	Freeze(bool)
}

// GasLimits are the fixed per-call limits from config. Fixed limits keep
// submission from re-simulating a call that was already estimated.
type GasLimits struct {
	Fill    uint64
	Wrap    uint64
	Approve uint64
}

// Request is the committed snapshot a transaction executes against. It
// is captured once at commit time and never re-read from live state.
type Request struct {
	Pair       token.Pair
	SellAmount *big.Int
	Quote      quote.Quote
}

// Status is the externally visible transaction state.
type Status struct {
	State  TxState `json:"state"`
	Action string  `json:"action,omitempty"`
	TxHash string  `json:"txHash,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Executor owns the single transaction slot. At most one transaction is
// in flight at a time; while it is, every registered Freezer is paused.
type Executor struct {
	chain          chainIface
	wrappedNative  string
	dustBps        int64
	margin         time.Duration
	resultDisplay  time.Duration
	receiptTimeout time.Duration
	gas            GasLimits
	log            *zap.Logger
	now            func() time.Time

	freezers []Freezer
	onChange func()
	onReset  func(ctx context.Context)

	mu     sync.RWMutex
	status Status
}

func New(c chainIface, wrappedNative string, dustBps int64, margin, resultDisplay, receiptTimeout time.Duration, gas GasLimits, log *zap.Logger) *Executor {
	return &Executor{
		chain:          c,
		wrappedNative:  wrappedNative,
		dustBps:        dustBps,
		margin:         margin,
		resultDisplay:  resultDisplay,
		receiptTimeout: receiptTimeout,
		gas:            gas,
		log:            log,
		now:            time.Now,
	}
}

// AddFreezer registers a component to pause while a transaction runs.
// Not safe to call after the first Commit.
func (e *Executor) AddFreezer(f Freezer) { e.freezers = append(e.freezers, f) }

// OnChange registers a callback fired on every state transition.
func (e *Executor) OnChange(fn func()) { e.onChange = fn }

// OnReset registers a callback fired after a terminal state clears back
// to idle. Balances and allowances are refreshed there.
func (e *Executor) OnReset(fn func(ctx context.Context)) { e.onReset = fn }

func (e *Executor) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Executor) Busy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status.State != StateIdle
}

// Commit starts a transaction for the given snapshot. allowance is the
// last known exchange allowance for the sell token and decides whether
// an approval runs instead of the swap itself. The work happens on a
// background goroutine tied to ctx; Commit only validates and claims
// the transaction slot.
func (e *Executor) Commit(ctx context.Context, req Request, allowance *big.Int) error {
	if !e.chain.HasSigner() {
		return chain.ErrNoSigner
	}
	if !req.Quote.HasOrder() || req.SellAmount == nil || req.SellAmount.Sign() <= 0 {
		return fmt.Errorf("nothing to commit")
	}
	action := Classify(req.Pair, e.wrappedNative, req.SellAmount, allowance)

	e.mu.Lock()
	if e.status.State != StateIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.status = Status{State: StateAwaitingWallet, Action: action.String()}
	e.mu.Unlock()
	metrics.TxTransitions.WithLabelValues(StateAwaitingWallet.String()).Inc()
	e.setFrozen(true)
	e.notify()

	go e.run(ctx, req, action)
	return nil
}

func (e *Executor) run(ctx context.Context, req Request, action Action) {
	tx, err := e.submit(ctx, req, action)
	if err != nil {
		e.log.Warn("executor: submission failed",
			zap.String("action", action.String()), zap.Error(err))
		e.finish(ctx, StateFailed, "", failureText(err))
		return
	}

	hash := tx.Hash()
	e.transition(StateProcessing, hash.Hex(), "")
	e.log.Info("executor: transaction submitted",
		zap.String("action", action.String()), zap.String("tx", hash.Hex()))

	receipt, err := e.chain.WaitMined(ctx, hash, e.receiptTimeout)
	switch {
	case err != nil:
		e.finish(ctx, StateFailed, hash.Hex(), "confirmation timed out")
	case receipt.Status != types.ReceiptStatusSuccessful:
		e.finish(ctx, StateFailed, hash.Hex(), "transaction reverted")
	default:
		e.log.Info("executor: transaction confirmed",
			zap.String("tx", hash.Hex()), zap.Uint64("block", receipt.BlockNumber.Uint64()))
		e.finish(ctx, StateProcessed, hash.Hex(), "")
	}
}

// submit performs the expiry re-check and dust adjustment, then sends
// the chosen call. The expiry check runs before any RPC so a stale quote
// fails fast without touching the chain.
func (e *Executor) submit(ctx context.Context, req Request, action Action) (*types.Transaction, error) {
	order := req.Quote.Order
	if action == ActionFill && order.ExpiresWithin(e.now(), e.margin) {
		return nil, ErrQuoteExpired
	}
	if action == ActionApprove {
		return e.chain.Approve(ctx, common.HexToAddress(req.Pair.Sell.Address), e.gas.Approve)
	}

	sellForSwap, err := e.adjustForDust(ctx, req)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionWrap:
		return e.chain.Wrap(ctx, sellForSwap, e.gas.Wrap)
	case ActionUnwrap:
		return e.chain.Unwrap(ctx, sellForSwap, e.gas.Wrap)
	default:
		// fillAmount is what the taker receives, derived from the raw
		// order ratio so rounding matches the quoted buy amount.
		fillAmount := new(big.Int).Mul(sellForSwap, order.SellAmount)
		fillAmount.Div(fillAmount, order.BuyAmount)
		return e.chain.FillOrder(ctx, chain.Order{
			User:                  common.HexToAddress(order.User),
			SellToken:             common.HexToAddress(order.SellToken),
			BuyToken:              common.HexToAddress(order.BuyToken),
			SellAmount:            order.SellAmount,
			BuyAmount:             order.BuyAmount,
			ExpirationTimeSeconds: big.NewInt(order.ExpirationTimeSeconds),
		}, common.FromHex(order.Signature), fillAmount, e.gas.Fill)
	}
}

// adjustForDust substitutes the exact live balance for the committed
// sell amount when the two are within the dust threshold, so a
// sell-everything swap cannot leave unsellable crumbs behind. Native
// sells are exempt: the remainder pays for gas.
func (e *Executor) adjustForDust(ctx context.Context, req Request) (*big.Int, error) {
	if req.Pair.Sell.IsNative() {
		return req.SellAmount, nil
	}
	balance, err := e.chain.BalanceOf(ctx, common.HexToAddress(req.Pair.Sell.Address), e.chain.Sender())
	if err != nil {
		return nil, fmt.Errorf("read sell balance: %w", err)
	}
	// Wallet state from the last poll can be ahead of the chain; the
	// live read is authoritative.
	if req.SellAmount.Cmp(balance) > 0 {
		return nil, ErrSellExceedsBalance
	}
	bps := new(big.Int).Mul(req.SellAmount, big.NewInt(10000))
	bps.Div(bps, balance)
	if bps.Int64() >= e.dustBps {
		return balance, nil
	}
	return req.SellAmount, nil
}

// finish records a terminal state, holds it for the display interval,
// then resets to idle and unfreezes everything.
func (e *Executor) finish(ctx context.Context, state TxState, txHash, errText string) {
	e.transition(state, txHash, errText)

	select {
	case <-ctx.Done():
	case <-time.After(e.resultDisplay):
	}

	e.mu.Lock()
	e.status = Status{State: StateIdle}
	e.mu.Unlock()
	metrics.TxTransitions.WithLabelValues(StateIdle.String()).Inc()
	e.setFrozen(false)
	if e.onReset != nil && ctx.Err() == nil {
		e.onReset(ctx)
	}
	e.notify()
}

func (e *Executor) transition(state TxState, txHash, errText string) {
	e.mu.Lock()
	e.status.State = state
	if txHash != "" {
		e.status.TxHash = txHash
	}
	e.status.Error = errText
	e.mu.Unlock()
	metrics.TxTransitions.WithLabelValues(state.String()).Inc()
	e.notify()
}

func (e *Executor) setFrozen(frozen bool) {
	for _, f := range e.freezers {
		f.Freeze(frozen)
	}
}

func (e *Executor) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}

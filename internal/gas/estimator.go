package gas

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/chain"
	"github.com/ZigZagExchange/zigzag-swap/internal/metrics"
	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/swap"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

type chainIface interface {
	HasSigner() bool
	FeePerGas(ctx context.Context) (*big.Int, error)
	EstimateFillGas(ctx context.Context, order chain.Order, signature []byte, fillAmount *big.Int) (uint64, error)
	EstimateWrapGas(ctx context.Context, value *big.Int) (uint64, error)
	EstimateUnwrapGas(ctx context.Context, amount *big.Int) (uint64, error)
}

// Estimator keeps a current estimate of the transaction fee implied by
// the selected quote, in native decimal units. Any failure (no signer,
// RPC error, simulation revert) makes the estimate unavailable rather
// than stale.
type Estimator struct {
	chain          chainIface
	wrappedNative  string
	nativeDecimals int
	log            *zap.Logger

	mu     sync.RWMutex
	q      quote.Quote
	pair   token.Pair
	hasQ   bool
	fee    float64
	feeOK  bool
	frozen bool
}

func NewEstimator(c chainIface, wrappedNative string, nativeDecimals int, log *zap.Logger) *Estimator {
	return &Estimator{
		chain:          c,
		wrappedNative:  wrappedNative,
		nativeDecimals: nativeDecimals,
		log:            log,
	}
}

// Update installs the quote the next refresh estimates against. A quote
// change invalidates the current estimate immediately.
func (e *Estimator) Update(q quote.Quote, pair token.Pair) {
	e.mu.Lock()
	// Quotes are rebuilt on every recompute, so identity is by value:
	// the order for fills, the pair for synthetic wrap quotes.
	same := e.hasQ && q.Order != nil && e.q.Order != nil && e.q.Order.Equal(*q.Order)
	if !same && q.Synthetic && e.q.Synthetic && pair.Key() == e.pair.Key() {
		same = true
	}
	e.q, e.pair, e.hasQ = q, pair, q.HasOrder()
	if !same {
		e.feeOK = false
	}
	e.mu.Unlock()
}

// Freeze pauses refreshes while a transaction is in flight.
func (e *Estimator) Freeze(frozen bool) {
	e.mu.Lock()
	e.frozen = frozen
	e.mu.Unlock()
}

// Fee returns the latest estimate in native units. ok is false while no
// trustworthy estimate exists.
func (e *Estimator) Fee() (fee float64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fee, e.feeOK
}

// Refresh recomputes the estimate for the current quote. The simulation
// uses a nominal unit amount because gas use for these calls is not
// meaningfully amount-dependent.
func (e *Estimator) Refresh(ctx context.Context) error {
	e.mu.RLock()
	q, pair, hasQ, frozen := e.q, e.pair, e.hasQ, e.frozen
	e.mu.RUnlock()
	if frozen {
		return nil
	}
	if !hasQ || !e.chain.HasSigner() {
		e.setUnavailable()
		return nil
	}

	gasUsed, err := e.estimateGas(ctx, q, pair)
	if err != nil {
		metrics.GasEstimateErrors.Inc()
		e.log.Debug("gas: estimate failed", zap.Error(err))
		e.setUnavailable()
		return nil
	}
	feePerGas, err := e.chain.FeePerGas(ctx)
	if err != nil {
		metrics.GasEstimateErrors.Inc()
		e.log.Debug("gas: fee data failed", zap.Error(err))
		e.setUnavailable()
		return nil
	}

	feeWei := new(big.Int).Mul(feePerGas, new(big.Int).SetUint64(gasUsed))
	fee := swap.AmountToFloat(feeWei, e.nativeDecimals)

	e.mu.Lock()
	e.fee, e.feeOK = fee, true
	e.mu.Unlock()
	metrics.GasFeeNative.Set(fee)
	return nil
}

func (e *Estimator) estimateGas(ctx context.Context, q quote.Quote, pair token.Pair) (uint64, error) {
	nominal := unitAmount(pair.Sell.Decimals)
	switch {
	case pair.IsWrap(e.wrappedNative):
		return e.chain.EstimateWrapGas(ctx, nominal)
	case pair.IsUnwrap(e.wrappedNative):
		return e.chain.EstimateUnwrapGas(ctx, nominal)
	default:
		o := q.Order
		if nominal.Cmp(o.BuyAmount) > 0 {
			nominal = o.BuyAmount
		}
		return e.chain.EstimateFillGas(ctx, chain.Order{
			User:                  common.HexToAddress(o.User),
			SellToken:             common.HexToAddress(o.SellToken),
			BuyToken:              common.HexToAddress(o.BuyToken),
			SellAmount:            o.SellAmount,
			BuyAmount:             o.BuyAmount,
			ExpirationTimeSeconds: big.NewInt(o.ExpirationTimeSeconds),
		}, common.FromHex(o.Signature), nominal)
	}
}

func (e *Estimator) setUnavailable() {
	e.mu.Lock()
	e.feeOK = false
	e.mu.Unlock()
	metrics.GasFeeNative.Set(0)
}

func unitAmount(decimals int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

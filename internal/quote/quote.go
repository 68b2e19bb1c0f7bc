package quote

import (
	"math"
	"math/big"
	"time"

	"github.com/ZigZagExchange/zigzag-swap/internal/orderbook"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

// Side names which input field the user last edited. The edited side is
// authoritative; the other side is derived from the quote.
type Side int

const (
	SideSell Side = iota
	SideBuy
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Quote is the selected maker order and its fee-adjusted price in buy
// units per sell unit. A zero price means no order qualified.
// Invariant: Price > 0 iff Order != nil.
type Quote struct {
	Order     *orderbook.Order
	Price     float64
	Synthetic bool
}

func (q Quote) HasOrder() bool { return q.Order != nil }

// Ratio returns the selected order's raw integer ratio
// (maker-offered units, maker-required units). Dependent amounts are
// derived from this ratio rather than from the floating price so that
// repeated conversions cannot drift.
func (q Quote) Ratio() (offer, require *big.Int) {
	if q.Order == nil {
		return nil, nil
	}
	return q.Order.SellAmount, q.Order.BuyAmount
}

// wrapExpiry is far enough out that a synthetic quote never trips any
// expiration check.
const wrapExpiry = math.MaxInt32

// SyntheticWrap returns the fixed 1:1 quote used for native<->wrapped
// pairs, which settle against the wrapped-native contract instead of the
// order book. Both sides of such a pair share the native decimals.
func SyntheticWrap(pair token.Pair) Quote {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(pair.Sell.Decimals)), nil)
	return Quote{
		Order: &orderbook.Order{
			SellToken:             pair.Buy.Address,
			BuyToken:              pair.Sell.Address,
			SellAmount:            unit,
			BuyAmount:             new(big.Int).Set(unit),
			ExpirationTimeSeconds: wrapExpiry,
		},
		Price:     1,
		Synthetic: true,
	}
}

// amountToFloat converts a smallest-unit integer to decimal token units.
func amountToFloat(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	f.Quo(f, big.NewFloat(math.Pow10(decimals)))
	out, _ := f.Float64()
	return out
}

// Selector picks the best executable order from a snapshot.
type Selector struct {
	Margin time.Duration
	Now    func() time.Time
}

func NewSelector(margin time.Duration) *Selector {
	return &Selector{Margin: margin, Now: time.Now}
}

// Best scans every order in the snapshot and returns the one maximizing
// the fee-adjusted price among orders that can satisfy the input amount
// and survive the expiration margin. A higher price is better for the
// user on either side since it means more output per unit input. Ties go
// to the first order seen, so ranking is stable in arrival order.
//
// amount is in the smallest unit of the input-side token. A nil or zero
// amount disables the size constraint and returns the best-priced order
// outright, which is what an empty input field shows.
func (s *Selector) Best(snap orderbook.Snapshot, side Side, amount *big.Int, buyDecimals, sellDecimals int, makerFee, takerFee float64) Quote {
	now := s.Now()

	var (
		best      *orderbook.Order
		bestPrice float64
	)
	for i := range snap.Orders {
		o := &snap.Orders[i]
		if o.ExpiresWithin(now, s.Margin) {
			continue
		}
		if amount != nil && amount.Sign() > 0 {
			switch side {
			case SideBuy:
				// maker must offer at least what the user wants to receive
				if o.SellAmount.Cmp(amount) < 0 {
					continue
				}
			case SideSell:
				// maker must be asking for at least the user's full payment
				if o.BuyAmount.Cmp(amount) < 0 {
					continue
				}
			}
		}
		price := EffectivePrice(
			amountToFloat(o.SellAmount, buyDecimals),
			amountToFloat(o.BuyAmount, sellDecimals),
			makerFee, takerFee,
		)
		if price > bestPrice {
			best, bestPrice = o, price
		}
	}
	if best == nil {
		return Quote{}
	}
	return Quote{Order: best, Price: bestPrice}
}

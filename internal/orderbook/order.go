package orderbook

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Order is an off-chain-signed maker order as served by the order feed.
// The maker offers SellAmount of SellToken for BuyAmount of BuyToken,
// so from the user's perspective SellToken is the token being bought.
// Amounts are integers in the token's smallest unit.
type Order struct {
	User                  string   `json:"user"`
	SellToken             string   `json:"sellToken"`
	BuyToken              string   `json:"buyToken"`
	SellAmount            *big.Int `json:"-"`
	BuyAmount             *big.Int `json:"-"`
	ExpirationTimeSeconds int64    `json:"-"`
	Signature             string   `json:"-"`
}

// SignedOrder is the wire shape of one order feed entry.
type SignedOrder struct {
	Order struct {
		User                  string `json:"user"`
		SellToken             string `json:"sellToken"`
		BuyToken              string `json:"buyToken"`
		SellAmount            string `json:"sellAmount"`
		BuyAmount             string `json:"buyAmount"`
		ExpirationTimeSeconds string `json:"expirationTimeSeconds"`
	} `json:"order"`
	Signature string `json:"signature"`
}

// Parse validates a wire order and converts it to the internal form.
func (s SignedOrder) Parse() (Order, error) {
	sellAmount, ok := new(big.Int).SetString(s.Order.SellAmount, 10)
	if !ok || sellAmount.Sign() <= 0 {
		return Order{}, fmt.Errorf("bad sellAmount %q", s.Order.SellAmount)
	}
	buyAmount, ok := new(big.Int).SetString(s.Order.BuyAmount, 10)
	if !ok || buyAmount.Sign() <= 0 {
		return Order{}, fmt.Errorf("bad buyAmount %q", s.Order.BuyAmount)
	}
	expires, ok := new(big.Int).SetString(s.Order.ExpirationTimeSeconds, 10)
	if !ok {
		return Order{}, fmt.Errorf("bad expirationTimeSeconds %q", s.Order.ExpirationTimeSeconds)
	}
	return Order{
		User:                  strings.ToLower(s.Order.User),
		SellToken:             strings.ToLower(s.Order.SellToken),
		BuyToken:              strings.ToLower(s.Order.BuyToken),
		SellAmount:            sellAmount,
		BuyAmount:             buyAmount,
		ExpirationTimeSeconds: expires.Int64(),
		Signature:             s.Signature,
	}, nil
}

// Equal reports whether two orders describe the same signed offer. Feed
// polls re-parse the response into fresh allocations, so identity is by
// value, never by pointer.
func (o Order) Equal(other Order) bool {
	return o.User == other.User &&
		o.SellToken == other.SellToken &&
		o.BuyToken == other.BuyToken &&
		o.ExpirationTimeSeconds == other.ExpirationTimeSeconds &&
		o.Signature == other.Signature &&
		o.SellAmount.Cmp(other.SellAmount) == 0 &&
		o.BuyAmount.Cmp(other.BuyAmount) == 0
}

// ExpiresWithin reports whether the order expires before now+margin.
func (o Order) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return o.ExpirationTimeSeconds < now.Add(margin).Unix()
}

// Snapshot is the order set for one directional pair at one fetch.
// Snapshots are immutable; the cache replaces them wholesale.
type Snapshot struct {
	PairKey   string
	Orders    []Order
	FetchedAt time.Time
}

func (s Snapshot) Empty() bool { return len(s.Orders) == 0 }

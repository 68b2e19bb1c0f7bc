package orderbook

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/metrics"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

type feedIface interface {
	Open(ctx context.Context, userSellToken, userBuyToken string, minExpires time.Time) ([]Order, error)
}

// Cache holds the live order book snapshot for the currently selected
// pair. Refresh is driven by a poller; a fetch failure keeps the previous
// snapshot because maker orders age out on their own and a stale book is
// more useful than an empty one. Orders that would expire within the
// safety margin are dropped at ingest so a quote can never be built on an
// order that reverts during wallet-confirmation latency.
type Cache struct {
	feed   feedIface
	margin time.Duration
	log    *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	pair     token.Pair
	hasPair  bool
	snap     Snapshot
	frozen   bool
	onUpdate func()
}

func NewCache(feed feedIface, margin time.Duration, log *zap.Logger) *Cache {
	return &Cache{feed: feed, margin: margin, log: log, now: time.Now}
}

// OnUpdate registers a callback fired after every snapshot replacement.
func (c *Cache) OnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// SetPair switches the cache to a new pair and discards the old snapshot
// immediately so no cross-pair orders can leak into quote selection.
func (c *Cache) SetPair(pair token.Pair) {
	c.mu.Lock()
	c.pair = pair
	c.hasPair = true
	c.snap = Snapshot{PairKey: pair.Key()}
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Freeze pauses refreshes while a transaction is in flight so the quote
// presented to the user cannot change mid-transaction.
func (c *Cache) Freeze(frozen bool) {
	c.mu.Lock()
	c.frozen = frozen
	c.mu.Unlock()
}

// Snapshot returns the current snapshot. The returned value shares its
// order slice with the cache; treat it as read-only.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Refresh fetches the open orders for the current pair and replaces the
// snapshot. A response that arrives after the pair changed is discarded.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	pair, hasPair, frozen := c.pair, c.hasPair, c.frozen
	c.mu.RUnlock()
	if !hasPair || frozen {
		return nil
	}

	now := c.now()
	orders, err := c.feed.Open(ctx, pair.Sell.Address, pair.Buy.Address, now.Add(c.margin))
	if err != nil {
		metrics.OrderFeedErrors.Inc()
		c.log.Warn("orderbook: fetch failed, keeping previous snapshot",
			zap.String("pair", pair.Key()), zap.Error(err))
		return err
	}

	kept := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.ExpiresWithin(now, c.margin) {
			continue
		}
		kept = append(kept, o)
	}

	c.mu.Lock()
	if !c.hasPair || c.pair.Key() != pair.Key() {
		// pair changed while the fetch was in flight
		c.mu.Unlock()
		c.log.Debug("orderbook: dropping stale-pair response", zap.String("pair", pair.Key()))
		return nil
	}
	c.snap = Snapshot{PairKey: pair.Key(), Orders: kept, FetchedAt: now}
	fn := c.onUpdate
	c.mu.Unlock()

	metrics.OrderBookSize.Set(float64(len(kept)))
	if fn != nil {
		fn()
	}
	return nil
}

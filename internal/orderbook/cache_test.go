package orderbook

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

type fakeFeed struct {
	orders []Order
	err    error
	calls  int
	// hook runs inside Open, before returning, to race pair changes.
	hook func()
}

func (f *fakeFeed) Open(context.Context, string, string, time.Time) ([]Order, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return f.orders, f.err
}

func testPair() token.Pair {
	return token.Pair{
		Sell: token.Info{Address: "0xaaa", Symbol: "WETH", Decimals: 18},
		Buy:  token.Info{Address: "0xbbb", Symbol: "USDC", Decimals: 6},
	}
}

func feedOrder(user string, expiresIn time.Duration) Order {
	return Order{
		User:                  user,
		SellAmount:            big.NewInt(100),
		BuyAmount:             big.NewInt(100),
		ExpirationTimeSeconds: time.Now().Add(expiresIn).Unix(),
	}
}

func TestRefreshDropsOrdersInsideMargin(t *testing.T) {
	feed := &fakeFeed{orders: []Order{
		feedOrder("keep", time.Hour),
		feedOrder("drop", 5*time.Second),
	}}
	c := NewCache(feed, 12*time.Second, zap.NewNop())
	c.SetPair(testPair())

	require.NoError(t, c.Refresh(context.Background()))
	snap := c.Snapshot()
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "keep", snap.Orders[0].User)
}

func TestRefreshKeepsSnapshotOnFeedFailure(t *testing.T) {
	feed := &fakeFeed{orders: []Order{feedOrder("a", time.Hour)}}
	c := NewCache(feed, 12*time.Second, zap.NewNop())
	c.SetPair(testPair())
	require.NoError(t, c.Refresh(context.Background()))

	feed.err = errors.New("backend down")
	assert.Error(t, c.Refresh(context.Background()))
	assert.Len(t, c.Snapshot().Orders, 1, "previous snapshot survives a failed fetch")
}

func TestSetPairDiscardsSnapshotImmediately(t *testing.T) {
	feed := &fakeFeed{orders: []Order{feedOrder("a", time.Hour)}}
	c := NewCache(feed, 12*time.Second, zap.NewNop())
	c.SetPair(testPair())
	require.NoError(t, c.Refresh(context.Background()))

	other := testPair()
	other.Sell, other.Buy = other.Buy, other.Sell
	c.SetPair(other)
	assert.True(t, c.Snapshot().Empty())
	assert.Equal(t, other.Key(), c.Snapshot().PairKey)
}

func TestRefreshDiscardsStalePairResponse(t *testing.T) {
	feed := &fakeFeed{orders: []Order{feedOrder("stale", time.Hour)}}
	c := NewCache(feed, 12*time.Second, zap.NewNop())
	c.SetPair(testPair())

	other := testPair()
	other.Sell, other.Buy = other.Buy, other.Sell
	feed.hook = func() { c.SetPair(other) } // pair flips mid-flight

	require.NoError(t, c.Refresh(context.Background()))
	assert.True(t, c.Snapshot().Empty(), "response for the old pair must be dropped")
}

func TestRefreshSkipsWhileFrozen(t *testing.T) {
	feed := &fakeFeed{}
	c := NewCache(feed, 12*time.Second, zap.NewNop())
	c.SetPair(testPair())
	c.Freeze(true)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Zero(t, feed.calls)

	c.Freeze(false)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 1, feed.calls)
}

func TestRefreshNoPairIsNoop(t *testing.T) {
	feed := &fakeFeed{}
	c := NewCache(feed, 12*time.Second, zap.NewNop())
	require.NoError(t, c.Refresh(context.Background()))
	assert.Zero(t, feed.calls)
}

func TestOnUpdateFiresAfterReplacement(t *testing.T) {
	feed := &fakeFeed{orders: []Order{feedOrder("a", time.Hour)}}
	c := NewCache(feed, 12*time.Second, zap.NewNop())
	fired := 0
	c.OnUpdate(func() { fired++ })
	c.SetPair(testPair())
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 2, fired, "once for SetPair, once for the refresh")
}

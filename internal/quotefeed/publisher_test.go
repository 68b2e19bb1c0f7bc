package quotefeed

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/config"
	"github.com/ZigZagExchange/zigzag-swap/internal/orderbook"
	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

func hGetAll(t *testing.T, mr *miniredis.Miniredis, key string) map[string]string {
	t.Helper()
	fields, err := mr.HKeys(key)
	require.NoError(t, err)
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f] = mr.HGet(key, f)
	}
	return out
}

func testQuote() (token.Pair, quote.Quote) {
	pair := token.Pair{
		Sell: token.Info{Address: "0xaaa", Symbol: "WETH", Decimals: 18},
		Buy:  token.Info{Address: "0xbbb", Symbol: "USDC", Decimals: 6},
	}
	q := quote.Quote{
		Order: &orderbook.Order{
			User:                  "0xmaker",
			SellAmount:            big.NewInt(2_000_000),
			BuyAmount:             big.NewInt(1_000_000),
			ExpirationTimeSeconds: time.Now().Add(time.Hour).Unix(),
		},
		Price: 2,
	}
	return pair, q
}

func TestPublishQuoteWritesSnapshotAndStream(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Stream = "quote:stream"
	cfg.Redis.SnapKey = "quote:snap:"

	p := NewPublisher(cfg, zap.NewNop())
	defer p.Close()
	require.True(t, p.Enabled())

	pair, q := testQuote()
	require.NoError(t, p.PublishQuote(context.Background(), pair, q))

	snap := hGetAll(t, mr, "quote:snap:"+pair.Key())
	assert.Equal(t, pair.Key(), snap["pair"])
	assert.Equal(t, "WETH", snap["sell"])
	assert.Equal(t, "USDC", snap["buy"])
	assert.Equal(t, "2", snap["price"])
	assert.Equal(t, "0xmaker", snap["maker"])

	entries, err := mr.Stream("quote:stream")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublishQuoteOverwritesSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()

	p := NewPublisher(cfg, zap.NewNop())
	defer p.Close()

	pair, q := testQuote()
	require.NoError(t, p.PublishQuote(context.Background(), pair, q))
	q.Price = 3
	require.NoError(t, p.PublishQuote(context.Background(), pair, q))

	snap := hGetAll(t, mr, "quote:snap:"+pair.Key())
	assert.Equal(t, "3", snap["price"])
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	p := NewPublisher(&config.Config{}, zap.NewNop())
	assert.False(t, p.Enabled())

	pair, q := testQuote()
	assert.NoError(t, p.PublishQuote(context.Background(), pair, q))
	assert.NoError(t, p.Close())
}

package prices

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

const wethAddr = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

// testDirectory builds a directory holding ETH plus WETH via a stub
// info backend.
func testDirectory(t *testing.T) *token.Directory {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"verifiedTokens": [{"address": %q, "symbol": "WETH", "decimals": 18}]}`, wethAddr)
	}))
	t.Cleanup(srv.Close)

	d := token.NewDirectory(srv.URL, wethAddr,
		token.Info{Symbol: "ETH", Decimals: 18}, zap.NewNop())
	require.NoError(t, d.Refresh(context.Background()))
	return d
}

func priceServer(t *testing.T, prices map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("search")
		p, ok := prices[symbol]
		if !ok {
			fmt.Fprint(w, `{"data": []}`)
			return
		}
		fmt.Fprintf(w, `{"data": [{"priceUsd": %q}]}`, p)
	}))
}

func TestRefreshFetchesPerSymbol(t *testing.T) {
	dir := testDirectory(t)
	srv := priceServer(t, map[string]string{
		"ETH":  "2450.12",
		"WETH": "2449.98",
	})
	defer srv.Close()

	f := NewFeed(srv.URL, dir, zap.NewNop())
	require.NoError(t, f.Refresh(context.Background()))

	p, ok := f.USD(token.NativeAddress)
	require.True(t, ok)
	assert.Equal(t, 2450.12, p)

	p, ok = f.USD(wethAddr)
	require.True(t, ok)
	assert.Equal(t, 2449.98, p)
}

func TestUnknownPriceIsAbsentNotZero(t *testing.T) {
	dir := testDirectory(t)
	srv := priceServer(t, map[string]string{"ETH": "2450"})
	defer srv.Close()

	f := NewFeed(srv.URL, dir, zap.NewNop())
	require.NoError(t, f.Refresh(context.Background()))

	_, ok := f.USD(wethAddr)
	assert.False(t, ok)
}

func TestRefreshRetainsPreviousOnFailure(t *testing.T) {
	dir := testDirectory(t)
	srv := priceServer(t, map[string]string{"ETH": "2450", "WETH": "2449"})

	f := NewFeed(srv.URL, dir, zap.NewNop())
	require.NoError(t, f.Refresh(context.Background()))
	srv.Close()

	require.NoError(t, f.Refresh(context.Background()))
	p, ok := f.USD(token.NativeAddress)
	assert.True(t, ok)
	assert.Equal(t, 2450.0, p, "stale display price beats no price")
}

func TestUSDIsCaseInsensitive(t *testing.T) {
	dir := testDirectory(t)
	srv := priceServer(t, map[string]string{"ETH": "1", "WETH": "2"})
	defer srv.Close()

	f := NewFeed(srv.URL, dir, zap.NewNop())
	require.NoError(t, f.Refresh(context.Background()))

	_, ok := f.USD("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	assert.True(t, ok)
}

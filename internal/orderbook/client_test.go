package orderbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func wireOrder(user, sell, buy, expires string) SignedOrder {
	var o SignedOrder
	o.Order.User = user
	o.Order.SellToken = "0xAAA"
	o.Order.BuyToken = "0xBBB"
	o.Order.SellAmount = sell
	o.Order.BuyAmount = buy
	o.Order.ExpirationTimeSeconds = expires
	o.Signature = "0xdeadbeef"
	return o
}

func TestOpenQueriesMakerPerspective(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders", r.URL.Path)
		gotQuery = map[string]string{
			"buyToken":  r.URL.Query().Get("buyToken"),
			"sellToken": r.URL.Query().Get("sellToken"),
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"orders": []SignedOrder{wireOrder("0xMAKER", "100", "200", "9999999999")},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	orders, err := c.Open(context.Background(), "0xUserSell", "0xUserBuy", time.Now())
	require.NoError(t, err)

	// The maker's buy side is what the user sells.
	assert.Equal(t, "0xusersell", gotQuery["buyToken"])
	assert.Equal(t, "0xuserbuy", gotQuery["sellToken"])
	require.Len(t, orders, 1)
	assert.Equal(t, "0xmaker", orders[0].User)
	assert.Equal(t, int64(100), orders[0].SellAmount.Int64())
}

func TestOpenSkipsMalformedOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"orders": []SignedOrder{
				wireOrder("0xgood", "100", "200", "9999999999"),
				wireOrder("0xbad", "not-a-number", "200", "9999999999"),
				wireOrder("0xzero", "0", "200", "9999999999"),
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	orders, err := c.Open(context.Background(), "0xa", "0xb", time.Now())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "0xgood", orders[0].User)
}

func TestOpenHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.Open(context.Background(), "0xa", "0xb", time.Now())
	assert.Error(t, err)
}

func TestExpiresWithin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	o := Order{ExpirationTimeSeconds: now.Add(10 * time.Second).Unix()}
	assert.True(t, o.ExpiresWithin(now, 12*time.Second))
	assert.False(t, o.ExpiresWithin(now, 5*time.Second))
}

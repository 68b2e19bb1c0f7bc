package orderbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client fetches open maker orders from the backend order feed.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Open returns all open orders a maker has posted for the user-side pair.
// The feed query is phrased from the maker's perspective, so the user's
// buy token goes into sellToken and vice versa. minExpires trims orders
// the backend already knows will not survive the safety margin.
func (c *Client) Open(ctx context.Context, userSellToken, userBuyToken string, minExpires time.Time) ([]Order, error) {
	q := url.Values{}
	q.Set("buyToken", strings.ToLower(userSellToken))
	q.Set("sellToken", strings.ToLower(userBuyToken))
	q.Set("minExpires", strconv.FormatInt(minExpires.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/orders?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order feed: http %d", resp.StatusCode)
	}

	var body struct {
		Orders []SignedOrder `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("order feed: decode: %w", err)
	}

	out := make([]Order, 0, len(body.Orders))
	for _, raw := range body.Orders {
		o, err := raw.Parse()
		if err != nil {
			c.log.Debug("orderbook: skipping malformed order", zap.Error(err))
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/metrics"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

// Feed polls a third-party symbol->USD price service. Prices are for
// display estimates only and are never used to compute on-chain amounts,
// so a low poll frequency and stale retention are fine: a missing fresh
// price keeps its previous value, and a never-seen price is simply
// absent ("unknown", not zero).
type Feed struct {
	baseURL string
	dir     *token.Directory
	http    *http.Client
	log     *zap.Logger

	mu  sync.RWMutex
	usd map[string]float64
}

func NewFeed(baseURL string, dir *token.Directory, log *zap.Logger) *Feed {
	return &Feed{
		baseURL: strings.TrimRight(baseURL, "/"),
		dir:     dir,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
		usd:     make(map[string]float64),
	}
}

// USD returns the last known price for a token address.
func (f *Feed) USD(address string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.usd[strings.ToLower(address)]
	return p, ok
}

// Refresh re-fetches a price for every directory token. Individual
// symbol failures are logged and skipped; previous values survive.
func (f *Feed) Refresh(ctx context.Context) error {
	for _, addr := range f.dir.Tokens() {
		info, ok := f.dir.Lookup(addr)
		if !ok {
			continue
		}
		price, err := f.fetchSymbol(ctx, info.Symbol)
		if err != nil {
			metrics.PriceFeedErrors.Inc()
			f.log.Debug("prices: fetch failed", zap.String("symbol", info.Symbol), zap.Error(err))
			continue
		}
		if price == 0 {
			f.log.Debug("prices: zero price", zap.String("symbol", info.Symbol))
			continue
		}
		f.mu.Lock()
		f.usd[strings.ToLower(addr)] = price
		f.mu.Unlock()
	}
	return nil
}

func (f *Feed) fetchSymbol(ctx context.Context, symbol string) (float64, error) {
	u := f.baseURL + "/assets?search=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price feed: http %d", resp.StatusCode)
	}

	var body struct {
		Data []struct {
			PriceUSD string `json:"priceUsd"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("price feed: decode: %w", err)
	}
	if len(body.Data) == 0 {
		return 0, fmt.Errorf("price feed: no match for %s", symbol)
	}
	price, err := strconv.ParseFloat(body.Data[0].PriceUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("price feed: bad price %q: %w", body.Data[0].PriceUSD, err)
	}
	return price, nil
}

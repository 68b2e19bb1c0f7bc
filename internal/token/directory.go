package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type infoMsg struct {
	Markets []struct {
		BuyToken  string `json:"buyToken"`
		SellToken string `json:"sellToken"`
		Verified  bool   `json:"verified"`
	} `json:"markets"`
	VerifiedTokens []Info `json:"verifiedTokens"`
	Exchange       struct {
		ExchangeAddress string       `json:"exchangeAddress"`
		MakerVolumeFee  float64      `json:"makerVolumeFee"`
		TakerVolumeFee  float64      `json:"takerVolumeFee"`
		Domain          EIP712Domain `json:"domain"`
		Types           EIP712Types  `json:"types"`
	} `json:"exchange"`
}

// Directory resolves token addresses to metadata and carries the
// exchange-wide parameters published by the markets/info feed: verified
// market keys, exchange contract address, fee schedule and the EIP-712
// descriptors. It is refreshed on an interval and keeps the previous
// data when a fetch fails.
type Directory struct {
	backendURL    string
	wrappedNative string
	native        Info
	http          *http.Client
	log           *zap.Logger

	mu              sync.RWMutex
	tokens          map[string]Info
	markets         []string
	exchangeAddress string
	makerFee        float64
	takerFee        float64
	domain          EIP712Domain
	types           EIP712Types
	ready           bool
}

func NewDirectory(backendURL, wrappedNative string, native Info, log *zap.Logger) *Directory {
	native.Address = strings.ToLower(NativeAddress)
	return &Directory{
		backendURL:    strings.TrimRight(backendURL, "/"),
		wrappedNative: strings.ToLower(wrappedNative),
		native:        native,
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
		tokens:        make(map[string]Info),
	}
}

// Refresh fetches GET /v1/info and replaces the directory contents
// wholesale. On error the previous contents are retained.
func (d *Directory) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.backendURL+"/v1/info", nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		d.log.Warn("token: info fetch failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.log.Warn("token: info fetch bad status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("info feed: http %d", resp.StatusCode)
	}
	var msg infoMsg
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return fmt.Errorf("info feed: decode: %w", err)
	}

	tokens := make(map[string]Info, len(msg.VerifiedTokens)+1)
	for _, t := range msg.VerifiedTokens {
		t.Address = strings.ToLower(t.Address)
		tokens[t.Address] = t
	}
	tokens[d.native.Address] = d.native

	markets := make([]string, 0, len(msg.Markets)+1)
	for _, m := range msg.Markets {
		if !m.Verified {
			continue
		}
		markets = append(markets, strings.ToLower(m.BuyToken)+"-"+strings.ToLower(m.SellToken))
	}
	// wrap/unwrap is always tradable even though it is not an order-book market
	if d.wrappedNative != "" {
		markets = append(markets, d.native.Address+"-"+d.wrappedNative)
	}

	d.mu.Lock()
	d.tokens = tokens
	d.markets = markets
	d.exchangeAddress = msg.Exchange.ExchangeAddress
	d.makerFee = msg.Exchange.MakerVolumeFee
	d.takerFee = msg.Exchange.TakerVolumeFee
	d.domain = msg.Exchange.Domain
	d.types = msg.Exchange.Types
	d.ready = true
	d.mu.Unlock()

	d.log.Debug("token: directory refreshed",
		zap.Int("tokens", len(tokens)),
		zap.Int("markets", len(markets)),
	)
	return nil
}

// Ready reports whether at least one info fetch has succeeded.
func (d *Directory) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// Lookup resolves a token address (case-insensitive) to its metadata.
func (d *Directory) Lookup(address string) (Info, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tokens[strings.ToLower(address)]
	return t, ok
}

// Tokens returns the addresses of all known tokens, native included.
func (d *Directory) Tokens() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.tokens))
	for addr := range d.tokens {
		out = append(out, addr)
	}
	return out
}

// Markets returns the verified market keys ("buy-sell", lowercase).
func (d *Directory) Markets() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.markets))
	copy(out, d.markets)
	return out
}

func (d *Directory) ExchangeAddress() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.exchangeAddress
}

// Fees returns the published maker and taker volume fees as fractions.
func (d *Directory) Fees() (maker, taker float64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.makerFee, d.takerFee
}

func (d *Directory) Domain() (EIP712Domain, EIP712Types) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.domain, d.types
}

func (d *Directory) WrappedNative() string { return d.wrappedNative }
func (d *Directory) Native() Info          { return d.native }

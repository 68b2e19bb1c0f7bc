package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/chain"
	"github.com/ZigZagExchange/zigzag-swap/internal/config"
	"github.com/ZigZagExchange/zigzag-swap/internal/executor"
	"github.com/ZigZagExchange/zigzag-swap/internal/gas"
	"github.com/ZigZagExchange/zigzag-swap/internal/metrics"
	"github.com/ZigZagExchange/zigzag-swap/internal/orderbook"
	"github.com/ZigZagExchange/zigzag-swap/internal/poller"
	"github.com/ZigZagExchange/zigzag-swap/internal/prices"
	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/quotefeed"
	"github.com/ZigZagExchange/zigzag-swap/internal/swap"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
	"github.com/ZigZagExchange/zigzag-swap/internal/wallet"
)

// Engine wires the directory, order book, selector, amount store, gas
// estimator and transaction executor together and drives them from
// intent messages. All pair and amount mutations go through Apply, so
// a single mutex serializes them.
type Engine struct {
	cfg      *config.Config
	log      *zap.Logger
	chain    *chain.Client
	dir      *token.Directory
	cache    *orderbook.Cache
	selector *quote.Selector
	store    *swap.Store
	wallet   *wallet.Store
	prices   *prices.Feed
	gas      *gas.Estimator
	exec     *executor.Executor
	feed     *quotefeed.Publisher
	publish  func(frame Frame)

	mu      sync.Mutex
	runCtx  context.Context
	tickets []*poller.Ticket
}

type Deps struct {
	Chain    *chain.Client
	Dir      *token.Directory
	Cache    *orderbook.Cache
	Selector *quote.Selector
	Store    *swap.Store
	Wallet   *wallet.Store
	Prices   *prices.Feed
	Gas      *gas.Estimator
	Exec     *executor.Executor
	Feed     *quotefeed.Publisher
}

func New(cfg *config.Config, d Deps, log *zap.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		log:      log,
		chain:    d.Chain,
		dir:      d.Dir,
		cache:    d.Cache,
		selector: d.Selector,
		store:    d.Store,
		wallet:   d.Wallet,
		prices:   d.Prices,
		gas:      d.Gas,
		exec:     d.Exec,
		feed:     d.Feed,
	}
	e.cache.OnUpdate(e.recompute)
	e.store.OnChange(e.publishFrame)
	e.exec.OnChange(e.publishFrame)
	e.exec.OnReset(e.afterTransaction)
	e.exec.AddFreezer(e.cache)
	e.exec.AddFreezer(e.store)
	e.exec.AddFreezer(e.gas)
	return e
}

// OnFrame registers the sink every state change is rendered into.
func (e *Engine) OnFrame(fn func(frame Frame)) { e.publish = fn }

// Start performs the initial directory sync, installs the starting
// pair from config, and launches the background pollers. It returns
// once the pollers are running; Stop tears them down.
func (e *Engine) Start(ctx context.Context) error {
	e.runCtx = ctx

	if err := e.refreshDirectory(ctx); err != nil {
		return fmt.Errorf("initial market sync: %w", err)
	}
	if err := e.setInitialPair(); err != nil {
		return err
	}

	e.tickets = []*poller.Ticket{
		poller.Start(ctx, "markets", e.cfg.MarketsPoll(), e.refreshDirectory, e.log),
		poller.Start(ctx, "orderbook", e.cfg.OrderBookPoll(), e.cache.Refresh, e.log),
		poller.Start(ctx, "wallet", e.cfg.OrderBookPoll(), e.refreshWallet, e.log),
		poller.Start(ctx, "prices", e.cfg.PricePoll(), e.prices.Refresh, e.log),
		poller.Start(ctx, "gas", e.cfg.GasPoll(), e.refreshGas, e.log),
	}
	return nil
}

func (e *Engine) Stop() {
	for _, t := range e.tickets {
		t.Stop()
	}
}

// Apply executes one intent. Intents are rejected wholesale while a
// transaction is in flight: the committed snapshot must not shift.
func (e *Engine) Apply(ctx context.Context, intent swap.Intent) error {
	if e.exec.Busy() {
		return executor.ErrBusy
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch intent.Type {
	case swap.IntentSelectSellToken:
		return e.selectToken(intent.Token, true)
	case swap.IntentSelectBuyToken:
		return e.selectToken(intent.Token, false)
	case swap.IntentSetSellAmount:
		e.store.SetInput(quote.SideSell, intent.Amount)
		e.recompute()
		return nil
	case swap.IntentSetBuyAmount:
		e.store.SetInput(quote.SideBuy, intent.Amount)
		e.recompute()
		return nil
	case swap.IntentSwitchTokens:
		pair := e.store.SwitchTokens()
		e.cache.SetPair(pair)
		e.kickOrderBook()
		e.recompute()
		return nil
	case swap.IntentMaximize:
		st := e.store.State()
		e.store.Maximize(e.wallet.Balance(st.Pair.Sell.Address))
		e.recompute()
		return nil
	case swap.IntentCommit:
		return e.commit()
	default:
		return fmt.Errorf("unknown intent type %q", intent.Type)
	}
}

// selectToken repoints one side of the pair. Picking the token already
// on the opposite side degenerates into a switch, matching what a user
// expects from a token picker.
func (e *Engine) selectToken(addressOrSymbol string, sellSide bool) error {
	info, err := e.resolveToken(addressOrSymbol)
	if err != nil {
		return err
	}
	st := e.store.State()
	pair := st.Pair
	if sellSide {
		if strings.EqualFold(info.Address, pair.Buy.Address) {
			pair = e.store.SwitchTokens()
			e.cache.SetPair(pair)
			e.kickOrderBook()
			e.recompute()
			return nil
		}
		pair.Sell = info
	} else {
		if strings.EqualFold(info.Address, pair.Sell.Address) {
			pair = e.store.SwitchTokens()
			e.cache.SetPair(pair)
			e.kickOrderBook()
			e.recompute()
			return nil
		}
		pair.Buy = info
	}
	e.store.SetPair(pair)
	e.cache.SetPair(pair)
	e.kickOrderBook()
	e.recompute()
	return nil
}

func (e *Engine) resolveToken(addressOrSymbol string) (token.Info, error) {
	if info, ok := e.dir.Lookup(addressOrSymbol); ok {
		return info, nil
	}
	for _, addr := range e.dir.Tokens() {
		if info, ok := e.dir.Lookup(addr); ok && strings.EqualFold(info.Symbol, addressOrSymbol) {
			return info, nil
		}
	}
	return token.Info{}, fmt.Errorf("unknown token %q", addressOrSymbol)
}

func (e *Engine) commit() error {
	st := e.store.State()
	balance := e.wallet.Balance(st.Pair.Sell.Address)
	allowance := e.wallet.Allowance(st.Pair.Sell.Address)
	if vs := e.store.Validate(balance, allowance, e.chain.HasSigner()); vs != swap.Ok && vs != swap.ExceedsAllowance {
		return fmt.Errorf("cannot commit: %s", vs)
	}
	return e.exec.Commit(e.runCtx, executor.Request{
		Pair:       st.Pair,
		SellAmount: st.SellAmount,
		Quote:      st.Quote,
	}, allowance)
}

// recompute reselects the best quote for the current inputs and pushes
// it into the amount store and gas estimator.
func (e *Engine) recompute() {
	st := e.store.State()
	pair := st.Pair
	if pair.Sell.Address == "" || pair.Buy.Address == "" {
		return
	}

	var q quote.Quote
	if pair.IsWrapPair(e.dir.WrappedNative()) {
		q = quote.SyntheticWrap(pair)
	} else {
		maker, taker := e.dir.Fees()
		amount := st.SellAmount
		if st.Side == quote.SideBuy {
			amount = st.BuyAmount
		}
		q = e.selector.Best(e.cache.Snapshot(), st.Side, amount,
			pair.Buy.Decimals, pair.Sell.Decimals, maker, taker)
	}

	e.store.SetQuote(q)
	e.gas.Update(q, pair)
	metrics.QuotePrice.Set(q.Price)

	// A changed quote invalidates the fee estimate; re-estimate right
	// away instead of waiting out the gas poll interval.
	if _, ok := e.gas.Fee(); !ok && q.HasOrder() && e.runCtx != nil {
		go func() { _ = e.gas.Refresh(e.runCtx) }()
	}

	if e.feed.Enabled() && e.runCtx != nil {
		go func() {
			ctx, cancel := context.WithTimeout(e.runCtx, 3*time.Second)
			defer cancel()
			if err := e.feed.PublishQuote(ctx, pair, q); err != nil {
				e.log.Debug("quotefeed: publish failed", zap.Error(err))
			}
		}()
	}
}

// kickOrderBook fetches the book for a freshly selected pair without
// waiting for the next poll tick.
func (e *Engine) kickOrderBook() {
	if e.runCtx == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(e.runCtx, 10*time.Second)
		defer cancel()
		_ = e.cache.Refresh(ctx)
	}()
}

// setInitialPair resolves the config pair against the freshly synced
// directory and points the book at it.
func (e *Engine) setInitialPair() error {
	sell, err := e.resolveToken(e.cfg.Pair.SellToken)
	if err != nil {
		return fmt.Errorf("config sell token: %w", err)
	}
	buy, err := e.resolveToken(e.cfg.Pair.BuyToken)
	if err != nil {
		return fmt.Errorf("config buy token: %w", err)
	}
	pair := token.Pair{Sell: sell, Buy: buy}
	e.store.SetPair(pair)
	e.cache.SetPair(pair)
	return nil
}

// refreshDirectory syncs markets and keeps the exchange address on the
// chain client current.
func (e *Engine) refreshDirectory(ctx context.Context) error {
	if err := e.dir.Refresh(ctx); err != nil {
		return err
	}
	if addr := e.dir.ExchangeAddress(); addr != "" {
		e.chain.SetExchange(addr)
	}
	return nil
}

func (e *Engine) refreshWallet(ctx context.Context) error {
	if err := e.wallet.Refresh(ctx, nil); err != nil {
		return err
	}
	e.publishFrame()
	return nil
}

func (e *Engine) refreshGas(ctx context.Context) error {
	if err := e.gas.Refresh(ctx); err != nil {
		return err
	}
	e.publishFrame()
	return nil
}

// afterTransaction runs when a terminal transaction state clears. The
// chain state just changed, so refresh balances twice: once now and
// once after a couple of blocks, in case the node lagged.
func (e *Engine) afterTransaction(ctx context.Context) {
	_ = e.refreshWallet(ctx)
	e.recompute()
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
		_ = e.refreshWallet(ctx)
		e.recompute()
	}()
}

func (e *Engine) balanceOrNil(address string) *big.Int {
	if e.wallet == nil {
		return nil
	}
	return e.wallet.Balance(address)
}

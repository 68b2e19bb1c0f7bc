package executor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/chain"
	"github.com/ZigZagExchange/zigzag-swap/internal/orderbook"
	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

const testWETH = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

type fakeChain struct {
	mu sync.Mutex

	signer        bool
	balance       *big.Int
	balanceErr    error
	submitErr     error
	waitErr       error
	receiptStatus uint64

	balanceCalls int
	actions      []string
	fillAmount   *big.Int
	wrapValue    *big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{signer: true, receiptStatus: types.ReceiptStatusSuccessful}
}

func (f *fakeChain) HasSigner() bool        { return f.signer }
func (f *fakeChain) Sender() common.Address { return common.HexToAddress("0x1") }

func (f *fakeChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return f.balance, f.balanceErr
}

func (f *fakeChain) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	return f.balance, f.balanceErr
}

func (f *fakeChain) tx(action string) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.actions = append(f.actions, action)
	return types.NewTx(&types.DynamicFeeTx{Nonce: uint64(len(f.actions))}), nil
}

func (f *fakeChain) Approve(context.Context, common.Address, uint64) (*types.Transaction, error) {
	return f.tx("approve")
}

func (f *fakeChain) FillOrder(_ context.Context, _ chain.Order, _ []byte, fillAmount *big.Int, _ uint64) (*types.Transaction, error) {
	f.mu.Lock()
	f.fillAmount = new(big.Int).Set(fillAmount)
	f.mu.Unlock()
	return f.tx("fill")
}

func (f *fakeChain) Wrap(_ context.Context, value *big.Int, _ uint64) (*types.Transaction, error) {
	f.mu.Lock()
	f.wrapValue = new(big.Int).Set(value)
	f.mu.Unlock()
	return f.tx("wrap")
}

func (f *fakeChain) Unwrap(_ context.Context, amount *big.Int, _ uint64) (*types.Transaction, error) {
	return f.tx("unwrap")
}

func (f *fakeChain) WaitMined(context.Context, common.Hash, time.Duration) (*types.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &types.Receipt{Status: f.receiptStatus, BlockNumber: big.NewInt(1)}, nil
}

type fakeFreezer struct {
	mu     sync.Mutex
	frozen bool
}

func (f *fakeFreezer) Freeze(v bool) {
	f.mu.Lock()
	f.frozen = v
	f.mu.Unlock()
}

func (f *fakeFreezer) isFrozen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frozen
}

func testExecutor(c *fakeChain) *Executor {
	return New(c, testWETH, 9999,
		12*time.Second, 20*time.Millisecond, time.Second,
		GasLimits{Fill: 300000, Wrap: 60000, Approve: 60000}, zap.NewNop())
}

func erc20Pair() token.Pair {
	return token.Pair{
		Sell: token.Info{Address: "0xaaa", Symbol: "DAI", Decimals: 18},
		Buy:  token.Info{Address: "0xbbb", Symbol: "USDC", Decimals: 6},
	}
}

// fillQuote offers 2000 buy units per 1000 sell units, expiring in an hour.
func fillQuote() quote.Quote {
	return quote.Quote{
		Order: &orderbook.Order{
			User:                  "0xmaker",
			SellToken:             "0xbbb",
			BuyToken:              "0xaaa",
			SellAmount:            big.NewInt(2000),
			BuyAmount:             big.NewInt(1000),
			ExpirationTimeSeconds: time.Now().Add(time.Hour).Unix(),
			Signature:             "0xdeadbeef",
		},
		Price: 2,
	}
}

func waitIdle(t *testing.T, e *Executor) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return e.Status().State == StateIdle
	}, time.Second, 5*time.Millisecond)
}

func TestClassify(t *testing.T) {
	wrap := token.Pair{
		Sell: token.Info{Address: token.NativeAddress},
		Buy:  token.Info{Address: testWETH},
	}
	unwrap := token.Pair{Sell: wrap.Buy, Buy: wrap.Sell}

	assert.Equal(t, ActionWrap, Classify(wrap, testWETH, big.NewInt(10), nil))
	assert.Equal(t, ActionUnwrap, Classify(unwrap, testWETH, big.NewInt(10), nil))
	assert.Equal(t, ActionApprove, Classify(erc20Pair(), testWETH, big.NewInt(10), big.NewInt(5)))
	assert.Equal(t, ActionFill, Classify(erc20Pair(), testWETH, big.NewInt(10), big.NewInt(10)))
	assert.Equal(t, ActionFill, Classify(erc20Pair(), testWETH, big.NewInt(10), nil),
		"unknown allowance does not force an approval")
}

func TestCommitFillHappyPath(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(1_000_000)
	e := testExecutor(c)

	var states []TxState
	var mu sync.Mutex
	e.OnChange(func() {
		mu.Lock()
		states = append(states, e.Status().State)
		mu.Unlock()
	})

	err := e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(500),
		Quote:      fillQuote(),
	}, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingWallet, e.Status().State)

	waitIdle(t, e)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StateProcessing)
	assert.Contains(t, states, StateProcessed)
	assert.Equal(t, []string{"fill"}, c.actions)
	// fillAmount = 500 * 2000 / 1000
	assert.Equal(t, big.NewInt(1000), c.fillAmount)
}

func TestCommitRunsApprovalWhenAllowanceShort(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(1_000_000)
	e := testExecutor(c)

	err := e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(500),
		Quote:      fillQuote(),
	}, big.NewInt(10))
	require.NoError(t, err)
	waitIdle(t, e)
	assert.Equal(t, []string{"approve"}, c.actions)
}

func TestDustGuardSubstitutesExactBalance(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(10_000)
	e := testExecutor(c)

	// 9_999 of 10_000 is inside the dust threshold; the fill must use
	// the full live balance so no crumbs are left behind.
	err := e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(9_999),
		Quote:      fillQuote(),
	}, big.NewInt(1_000_000))
	require.NoError(t, err)
	waitIdle(t, e)
	assert.Equal(t, big.NewInt(20_000), c.fillAmount, "10000 * 2000 / 1000")
}

func TestDustGuardLeavesOrdinaryAmounts(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(10_000)
	e := testExecutor(c)

	err := e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(5_000),
		Quote:      fillQuote(),
	}, big.NewInt(1_000_000))
	require.NoError(t, err)
	waitIdle(t, e)
	assert.Equal(t, big.NewInt(10_000), c.fillAmount)
}

func TestSellAboveLiveBalanceFailsFast(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(100)
	e := testExecutor(c)

	var failText string
	var mu sync.Mutex
	e.OnChange(func() {
		mu.Lock()
		if st := e.Status(); st.State == StateFailed {
			failText = st.Error
		}
		mu.Unlock()
	})

	// The wallet poll can lag the chain; the live read is authoritative
	// and a fill above it must never be submitted.
	err := e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(500),
		Quote:      fillQuote(),
	}, big.NewInt(1_000_000))
	require.NoError(t, err)
	waitIdle(t, e)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "sell amount exceeds balance", failText)
	assert.Empty(t, c.actions, "nothing may be submitted")
}

func TestExpiredQuoteFailsBeforeAnyRPC(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(1_000_000)
	e := testExecutor(c)

	q := fillQuote()
	q.Order.ExpirationTimeSeconds = time.Now().Add(5 * time.Second).Unix()

	var sawFailed bool
	var failText string
	var mu sync.Mutex
	e.OnChange(func() {
		mu.Lock()
		if st := e.Status(); st.State == StateFailed {
			sawFailed = true
			failText = st.Error
		}
		mu.Unlock()
	})

	err := e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(500),
		Quote:      q,
	}, big.NewInt(1_000_000))
	require.NoError(t, err)
	waitIdle(t, e)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawFailed)
	assert.Equal(t, "quote expired", failText)
	assert.Empty(t, c.actions, "nothing may be submitted")
	assert.Zero(t, c.balanceCalls, "expiry is checked before any chain read")
}

func TestRevertedReceiptFails(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(1_000_000)
	c.receiptStatus = types.ReceiptStatusFailed
	e := testExecutor(c)

	var sawFailed bool
	var mu sync.Mutex
	e.OnChange(func() {
		mu.Lock()
		if e.Status().State == StateFailed {
			sawFailed = true
		}
		mu.Unlock()
	})

	require.NoError(t, e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(500),
		Quote:      fillQuote(),
	}, big.NewInt(1_000_000)))
	waitIdle(t, e)
	mu.Lock()
	assert.True(t, sawFailed)
	mu.Unlock()
}

func TestCommitRejectsWhileBusy(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(1_000_000)
	e := testExecutor(c)
	req := Request{Pair: erc20Pair(), SellAmount: big.NewInt(500), Quote: fillQuote()}

	require.NoError(t, e.Commit(context.Background(), req, big.NewInt(1_000_000)))
	assert.ErrorIs(t, e.Commit(context.Background(), req, big.NewInt(1_000_000)), ErrBusy)
	waitIdle(t, e)
}

func TestCommitRequiresSigner(t *testing.T) {
	c := newFakeChain()
	c.signer = false
	e := testExecutor(c)

	err := e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(500),
		Quote:      fillQuote(),
	}, nil)
	assert.ErrorIs(t, err, chain.ErrNoSigner)
}

func TestFreezersTrackLifecycle(t *testing.T) {
	c := newFakeChain()
	c.balance = big.NewInt(1_000_000)
	e := testExecutor(c)
	fz := &fakeFreezer{}
	e.AddFreezer(fz)

	resetCh := make(chan struct{}, 1)
	e.OnReset(func(context.Context) { resetCh <- struct{}{} })

	require.NoError(t, e.Commit(context.Background(), Request{
		Pair:       erc20Pair(),
		SellAmount: big.NewInt(500),
		Quote:      fillQuote(),
	}, big.NewInt(1_000_000)))
	assert.True(t, fz.isFrozen())

	select {
	case <-resetCh:
	case <-time.After(time.Second):
		t.Fatal("reset callback never fired")
	}
	waitIdle(t, e)
	assert.False(t, fz.isFrozen())
}

func TestWrapCommit(t *testing.T) {
	c := newFakeChain()
	e := testExecutor(c)
	pair := token.Pair{
		Sell: token.Info{Address: token.NativeAddress, Symbol: "ETH", Decimals: 18},
		Buy:  token.Info{Address: testWETH, Symbol: "WETH", Decimals: 18},
	}

	require.NoError(t, e.Commit(context.Background(), Request{
		Pair:       pair,
		SellAmount: big.NewInt(123),
		Quote:      quote.SyntheticWrap(pair),
	}, nil))
	waitIdle(t, e)
	assert.Equal(t, []string{"wrap"}, c.actions)
	assert.Equal(t, big.NewInt(123), c.wrapValue, "native sells skip the dust guard")
}

func TestFailureText(t *testing.T) {
	assert.Equal(t, "quote expired", failureText(ErrQuoteExpired))
	assert.Equal(t, "sell amount exceeds balance", failureText(ErrSellExceedsBalance))
	assert.Equal(t, "rejected by signer", failureText(errors.New("execution aborted: user denied transaction")))
	assert.Equal(t, "insufficient funds for gas", failureText(errors.New("insufficient funds for gas * price + value")))
	assert.Equal(t, "transaction failed", failureText(errors.New("nonce too low")))
	assert.Empty(t, failureText(nil))
}

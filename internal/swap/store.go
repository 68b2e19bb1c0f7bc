package swap

import (
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

// State is an immutable view of the synchronizer for renderers.
type State struct {
	Pair       token.Pair
	Side       quote.Side
	SellText   string
	BuyText    string
	SellAmount *big.Int
	BuyAmount  *big.Int
	Quote      quote.Quote
	Frozen     bool
}

// Store owns the two user-facing amount fields and keeps them mutually
// consistent with the selected quote. Exactly one side is authoritative
// at any time: the one the user last edited. The other side is always
// recomputed from the selected order's raw integer ratio, so feeding an
// output back as input reproduces the original value within one
// smallest unit.
type Store struct {
	wrappedNative    string
	nativeReserve    *big.Int
	maxInputDecimals int
	log              *zap.Logger

	mu         sync.RWMutex
	pair       token.Pair
	side       quote.Side
	sellText   string
	buyText    string
	sellAmount *big.Int
	buyAmount  *big.Int
	parseErr   error
	q          quote.Quote
	frozen     bool
	onChange   func()
}

// NewStore builds a synchronizer. nativeReserve is the headroom, in
// native decimal units, held back by Maximize when selling the native
// currency so the wallet can still pay for gas.
func NewStore(wrappedNative string, nativeReserve float64, nativeDecimals, maxInputDecimals int, log *zap.Logger) *Store {
	reserve, _ := new(big.Float).Mul(
		big.NewFloat(nativeReserve),
		new(big.Float).SetInt(pow10(nativeDecimals)),
	).Int(nil)
	return &Store{
		wrappedNative:    wrappedNative,
		nativeReserve:    reserve,
		maxInputDecimals: maxInputDecimals,
		log:              log,
		sellAmount:       new(big.Int),
		buyAmount:        new(big.Int),
	}
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// OnChange registers a callback fired after every state mutation.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notifyLocked() func() { return s.onChange }

// SetPair resets the store for a new token pair. Amounts are cleared:
// they were denominated in the old tokens.
func (s *Store) SetPair(pair token.Pair) {
	s.mu.Lock()
	s.pair = pair
	s.sellText, s.buyText = "", ""
	s.sellAmount, s.buyAmount = new(big.Int), new(big.Int)
	s.parseErr = nil
	s.q = quote.Quote{}
	fn := s.notifyLocked()
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetQuote installs a freshly selected quote and recomputes the
// dependent side. Ignored while frozen: the pair shown to the user must
// not move underneath an in-flight transaction.
func (s *Store) SetQuote(q quote.Quote) {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return
	}
	s.q = q
	s.recomputeLocked()
	fn := s.notifyLocked()
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetInput records a user edit on one field, makes that side
// authoritative, and recomputes the other field.
func (s *Store) SetInput(side quote.Side, text string) {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return
	}
	s.side = side
	decimals := s.pair.Sell.Decimals
	if side == quote.SideBuy {
		decimals = s.pair.Buy.Decimals
	}
	amount, err := ParseAmount(text, decimals, s.maxInputDecimals)
	s.parseErr = err
	if err != nil {
		amount = new(big.Int)
	}
	if side == quote.SideSell {
		s.sellText, s.sellAmount = text, amount
	} else {
		s.buyText, s.buyAmount = text, amount
	}
	s.recomputeLocked()
	fn := s.notifyLocked()
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Maximize sets the sell side to the full wallet balance, minus the gas
// reserve when the sell token is the native currency.
func (s *Store) Maximize(balance *big.Int) {
	if balance == nil {
		return
	}
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return
	}
	amount := new(big.Int).Set(balance)
	if s.pair.Sell.IsNative() {
		amount.Sub(amount, s.nativeReserve)
		if amount.Sign() < 0 {
			amount.SetInt64(0)
		}
	}
	s.side = quote.SideSell
	s.sellAmount = amount
	s.sellText = FormatAmount(amount, s.pair.Sell.Decimals)
	s.parseErr = nil
	s.recomputeLocked()
	fn := s.notifyLocked()
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SwitchTokens reverses the pair. The amount the user was going to
// receive becomes the amount they now offer, and the sell side becomes
// authoritative. Returns the new pair so the caller can repoint the
// order book.
func (s *Store) SwitchTokens() token.Pair {
	s.mu.Lock()
	if s.frozen {
		pair := s.pair
		s.mu.Unlock()
		return pair
	}
	s.pair = token.Pair{Sell: s.pair.Buy, Buy: s.pair.Sell}
	s.side = quote.SideSell
	s.sellText, s.sellAmount = s.buyText, s.buyAmount
	s.buyText, s.buyAmount = "", new(big.Int)
	s.q = quote.Quote{}
	pair := s.pair
	fn := s.notifyLocked()
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return pair
}

// Freeze blocks quote and input mutations while a transaction runs.
func (s *Store) Freeze(frozen bool) {
	s.mu.Lock()
	s.frozen = frozen
	fn := s.notifyLocked()
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// recomputeLocked derives the non-authoritative side from the quote's
// integer ratio. Called with s.mu held.
func (s *Store) recomputeLocked() {
	offer, require := s.q.Ratio()
	if offer == nil || require == nil || offer.Sign() == 0 || require.Sign() == 0 {
		if s.side == quote.SideSell {
			s.buyAmount = new(big.Int)
			s.buyText = ""
		} else {
			s.sellAmount = new(big.Int)
			s.sellText = ""
		}
		return
	}
	if s.side == quote.SideSell {
		// buy = sell * offered / required, truncating
		s.buyAmount = new(big.Int).Div(new(big.Int).Mul(s.sellAmount, offer), require)
		s.buyText = FormatAmount(s.buyAmount, s.pair.Buy.Decimals)
	} else {
		s.sellAmount = new(big.Int).Div(new(big.Int).Mul(s.buyAmount, require), offer)
		s.sellText = FormatAmount(s.sellAmount, s.pair.Sell.Decimals)
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Pair:       s.pair,
		Side:       s.side,
		SellText:   s.sellText,
		BuyText:    s.buyText,
		SellAmount: new(big.Int).Set(s.sellAmount),
		BuyAmount:  new(big.Int).Set(s.buyAmount),
		Quote:      s.q,
		Frozen:     s.frozen,
	}
}

// Validate derives the blocking state for the current input against the
// wallet. Nil balance or allowance means unknown, which never blocks.
func (s *Store) Validate(balance, allowance *big.Int, userPresent bool) ValidationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wrapPair := s.pair.IsWrapPair(s.wrappedNative)
	return validate(s.parseErr, s.sellAmount, balance, allowance, s.q.HasOrder(), wrapPair, userPresent)
}

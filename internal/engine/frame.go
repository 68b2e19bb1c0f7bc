package engine

import (
	"time"

	"github.com/ZigZagExchange/zigzag-swap/internal/executor"
)

// TokenView is one token as the browser sees it: directory metadata
// plus the wallet's balance and the USD price, when known.
type TokenView struct {
	Address  string  `json:"address"`
	Symbol   string  `json:"symbol"`
	Decimals int     `json:"decimals"`
	Name     string  `json:"name,omitempty"`
	Balance  float64 `json:"balance"`
	USD      float64 `json:"usd,omitempty"`
}

// Frame is the full render state pushed to clients on every change.
type Frame struct {
	Sell       TokenView       `json:"sell"`
	Buy        TokenView       `json:"buy"`
	Side       string          `json:"side"`
	SellText   string          `json:"sellText"`
	BuyText    string          `json:"buyText"`
	Price      float64         `json:"price"`
	Synthetic  bool            `json:"synthetic"`
	Validation string          `json:"validation"`
	GasFee     float64         `json:"gasFee"`
	GasOK      bool            `json:"gasOk"`
	Tx         executor.Status `json:"tx"`
	Tokens     []TokenView     `json:"tokens"`
	Markets    []string        `json:"markets"`
	TS         int64           `json:"ts"`
}

func (e *Engine) publishFrame() {
	if e.publish == nil {
		return
	}
	e.publish(e.buildFrame())
}

func (e *Engine) buildFrame() Frame {
	st := e.store.State()
	balance := e.balanceOrNil(st.Pair.Sell.Address)
	allowance := e.wallet.Allowance(st.Pair.Sell.Address)
	validation := e.store.Validate(balance, allowance, e.chain.HasSigner())
	fee, feeOK := e.gas.Fee()

	f := Frame{
		Sell:       e.tokenView(st.Pair.Sell.Address),
		Buy:        e.tokenView(st.Pair.Buy.Address),
		Side:       st.Side.String(),
		SellText:   st.SellText,
		BuyText:    st.BuyText,
		Price:      st.Quote.Price,
		Synthetic:  st.Quote.Synthetic,
		Validation: validation.String(),
		GasFee:     fee,
		GasOK:      feeOK,
		Tx:         e.exec.Status(),
		Markets:    e.dir.Markets(),
		TS:         time.Now().UnixMilli(),
	}
	for _, addr := range e.dir.Tokens() {
		f.Tokens = append(f.Tokens, e.tokenView(addr))
	}
	return f
}

func (e *Engine) tokenView(address string) TokenView {
	info, ok := e.dir.Lookup(address)
	if !ok {
		return TokenView{Address: address}
	}
	v := TokenView{
		Address:  info.Address,
		Symbol:   info.Symbol,
		Decimals: info.Decimals,
		Name:     info.Name,
	}
	if entry, ok := e.wallet.BalanceEntry(info.Address); ok {
		v.Balance = entry.Readable
	}
	if usd, ok := e.prices.USD(info.Address); ok {
		v.USD = usd
	}
	return v
}

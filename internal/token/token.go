package token

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the pseudo-address under which the chain's native
// currency is tracked. The backend only lists ERC-20s; the zero address
// slot is reserved for ETH (or the chain equivalent).
var NativeAddress = common.Address{}.Hex()

// Info describes a tradable token. Addresses are lowercase-normalized
// on ingest and immutable afterwards.
type Info struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
}

func (i Info) IsNative() bool {
	return i.Address == strings.ToLower(NativeAddress)
}

// Pair is a directional user-side pair: the token the user pays with and
// the token the user receives.
type Pair struct {
	Sell Info
	Buy  Info
}

// Key returns the market key "buy-sell" used by the verified market list.
func (p Pair) Key() string {
	return strings.ToLower(p.Buy.Address) + "-" + strings.ToLower(p.Sell.Address)
}

// IsWrap reports whether the pair is native -> wrapped-native.
func (p Pair) IsWrap(wrappedNative string) bool {
	return p.Sell.IsNative() && strings.EqualFold(p.Buy.Address, wrappedNative)
}

// IsUnwrap reports whether the pair is wrapped-native -> native.
func (p Pair) IsUnwrap(wrappedNative string) bool {
	return p.Buy.IsNative() && strings.EqualFold(p.Sell.Address, wrappedNative)
}

// IsWrapPair reports whether the pair bypasses the order book entirely.
func (p Pair) IsWrapPair(wrappedNative string) bool {
	return p.IsWrap(wrappedNative) || p.IsUnwrap(wrappedNative)
}

// EIP712Domain mirrors the domain descriptor published by the backend and
// used to validate order signatures off-chain.
type EIP712Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

type EIP712Types struct {
	Order []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"Order"`
}

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrNoSigner is returned by every submitting or estimating call when
// the client was built without a wallet key.
var ErrNoSigner = errors.New("chain: no signer configured")

// MaxUint256 is the unlimited approval amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Order is the on-chain order tuple passed to fillOrder. Field order
// matches the exchange contract's LibOrder.Order.
type Order struct {
	User                  common.Address
	SellToken             common.Address
	BuyToken              common.Address
	SellAmount            *big.Int
	BuyAmount             *big.Int
	ExpirationTimeSeconds *big.Int
}

// Client wraps an Ethereum RPC endpoint with the handful of calls the
// swap engine needs: ERC-20 reads, approvals, order fills and WETH
// wrap/unwrap, plus gas estimation for each of those.
type Client struct {
	ec     *ethclient.Client
	log    *zap.Logger
	pk     *ecdsa.PrivateKey
	sender common.Address
	weth   common.Address

	eabi abi.ABI
	xabi abi.ABI
	wabi abi.ABI

	mu       sync.RWMutex
	exchange common.Address
}

// Dial connects to the RPC endpoint. walletPK may be empty: the client
// then serves reads only and every submit fails with ErrNoSigner, which
// upstream treats as the wallet-not-connected state.
func Dial(rpcURL, walletPK, wethAddr string, log *zap.Logger) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c := &Client{
		ec:   ec,
		log:  log,
		weth: common.HexToAddress(wethAddr),
	}
	c.eabi, _ = abi.JSON(strings.NewReader(erc20ABI))
	c.xabi, _ = abi.JSON(strings.NewReader(exchangeABI))
	c.wabi, _ = abi.JSON(strings.NewReader(wethABI))

	if walletPK != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(walletPK, "0x"))
		if err != nil {
			return nil, fmt.Errorf("bad private key: %w", err)
		}
		c.pk = pk
		c.sender = crypto.PubkeyToAddress(pk.PublicKey)
	}
	return c, nil
}

func (c *Client) HasSigner() bool        { return c.pk != nil }
func (c *Client) Sender() common.Address { return c.sender }
func (c *Client) Raw() *ethclient.Client { return c.ec }
func (c *Client) WETH() common.Address   { return c.weth }

// SetExchange updates the exchange contract address published by the
// info feed.
func (c *Client) SetExchange(addr string) {
	c.mu.Lock()
	c.exchange = common.HexToAddress(addr)
	c.mu.Unlock()
}

func (c *Client) Exchange() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exchange
}

// NativeBalance returns the native currency balance of owner.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.ec.BalanceAt(ctx, owner, nil)
}

// BalanceOf returns the ERC-20 balance of owner.
func (c *Client) BalanceOf(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error) {
	data, err := c.eabi.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	res, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	var out *big.Int
	if err := c.eabi.UnpackIntoInterface(&out, "balanceOf", res); err != nil {
		return nil, fmt.Errorf("decode balanceOf: %w", err)
	}
	return out, nil
}

// Allowance returns the ERC-20 allowance granted by owner to the
// exchange contract.
func (c *Client) Allowance(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error) {
	data, err := c.eabi.Pack("allowance", owner, c.Exchange())
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	res, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call allowance: %w", err)
	}
	var out *big.Int
	if err := c.eabi.UnpackIntoInterface(&out, "allowance", res); err != nil {
		return nil, fmt.Errorf("decode allowance: %w", err)
	}
	return out, nil
}

// FeePerGas returns maxFeePerGas + maxPriorityFeePerGas, the per-gas
// rate the fee estimate multiplies the gas amount by.
func (c *Client) FeePerGas(ctx context.Context) (*big.Int, error) {
	tip, err := c.ec.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	header, err := c.ec.HeaderByNumber(ctx, nil)
	if err != nil || header.BaseFee == nil {
		return nil, fmt.Errorf("get header/base fee: %w", err)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), tip)
	return new(big.Int).Add(feeCap, tip), nil
}

// EstimateFillGas simulates fillOrder for the given fill amount and
// returns the gas it would use.
func (c *Client) EstimateFillGas(ctx context.Context, order Order, signature []byte, fillAmount *big.Int) (uint64, error) {
	if !c.HasSigner() {
		return 0, ErrNoSigner
	}
	data, err := c.xabi.Pack("fillOrder", order, signature, fillAmount, false)
	if err != nil {
		return 0, fmt.Errorf("pack fillOrder: %w", err)
	}
	exchange := c.Exchange()
	return c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.sender, To: &exchange, Data: data})
}

// EstimateWrapGas simulates a WETH deposit of the given value.
func (c *Client) EstimateWrapGas(ctx context.Context, value *big.Int) (uint64, error) {
	if !c.HasSigner() {
		return 0, ErrNoSigner
	}
	data, err := c.wabi.Pack("deposit")
	if err != nil {
		return 0, fmt.Errorf("pack deposit: %w", err)
	}
	return c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.sender, To: &c.weth, Value: value, Data: data})
}

// EstimateUnwrapGas simulates a WETH withdraw of the given amount.
func (c *Client) EstimateUnwrapGas(ctx context.Context, amount *big.Int) (uint64, error) {
	if !c.HasSigner() {
		return 0, ErrNoSigner
	}
	data, err := c.wabi.Pack("withdraw", amount)
	if err != nil {
		return 0, fmt.Errorf("pack withdraw: %w", err)
	}
	return c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.sender, To: &c.weth, Data: data})
}

// Approve grants the exchange contract an unlimited allowance on token.
func (c *Client) Approve(ctx context.Context, tokenAddr common.Address, gasLimit uint64) (*types.Transaction, error) {
	data, err := c.eabi.Pack("approve", c.Exchange(), MaxUint256)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return c.submit(ctx, tokenAddr, big.NewInt(0), gasLimit, data)
}

// FillOrder submits a taker fill of the given maker order.
func (c *Client) FillOrder(ctx context.Context, order Order, signature []byte, fillAmount *big.Int, gasLimit uint64) (*types.Transaction, error) {
	data, err := c.xabi.Pack("fillOrder", order, signature, fillAmount, false)
	if err != nil {
		return nil, fmt.Errorf("pack fillOrder: %w", err)
	}
	return c.submit(ctx, c.Exchange(), big.NewInt(0), gasLimit, data)
}

// Wrap deposits native currency into the wrapped-native contract.
func (c *Client) Wrap(ctx context.Context, value *big.Int, gasLimit uint64) (*types.Transaction, error) {
	data, err := c.wabi.Pack("deposit")
	if err != nil {
		return nil, fmt.Errorf("pack deposit: %w", err)
	}
	return c.submit(ctx, c.weth, value, gasLimit, data)
}

// Unwrap withdraws native currency from the wrapped-native contract.
func (c *Client) Unwrap(ctx context.Context, amount *big.Int, gasLimit uint64) (*types.Transaction, error) {
	data, err := c.wabi.Pack("withdraw", amount)
	if err != nil {
		return nil, fmt.Errorf("pack withdraw: %w", err)
	}
	return c.submit(ctx, c.weth, big.NewInt(0), gasLimit, data)
}

func (c *Client) submit(ctx context.Context, to common.Address, value *big.Int, gasLimit uint64, data []byte) (*types.Transaction, error) {
	if !c.HasSigner() {
		return nil, ErrNoSigner
	}
	signedTx, err := c.signTx(ctx, to, value, gasLimit, data)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return signedTx, nil
}

func (c *Client) signTx(ctx context.Context, to common.Address, value *big.Int, gasLimit uint64, data []byte) (*types.Transaction, error) {
	chainID, err := c.ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := c.ec.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasTipCap, err := c.ec.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	header, err := c.ec.HeaderByNumber(ctx, nil)
	if err != nil || header.BaseFee == nil {
		return nil, fmt.Errorf("get header/base fee: %w", err)
	}
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	return types.SignTx(tx, types.NewLondonSigner(chainID), c.pk)
}

// WaitMined polls for the transaction receipt until it lands or the
// timeout elapses.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		receipt, err := c.ec.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("timeout waiting for receipt %s: %w", txHash.Hex(), waitCtx.Err())
		case <-time.After(2 * time.Second):
		}
	}
}

package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/chain"
	"github.com/ZigZagExchange/zigzag-swap/internal/multicall"
	"github.com/ZigZagExchange/zigzag-swap/internal/swap"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

const erc20ReadABI = `[
  {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

type chainReader interface {
	HasSigner() bool
	Sender() common.Address
	Exchange() common.Address
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error)
}

// Entry carries a balance both as the raw integer and as the lossy
// human-readable value used for display estimates.
type Entry struct {
	Value    *big.Int
	Readable float64
}

// Store tracks the user's balances and exchange allowances per token.
// It refreshes via a single multicall aggregate when one is configured,
// falling back to per-token reads otherwise. The native currency has an
// infinite allowance: there is nothing to approve.
type Store struct {
	reader chainReader
	mc     multicall.Caller
	dir    *token.Directory
	log    *zap.Logger
	eabi   abi.ABI

	mu         sync.RWMutex
	balances   map[string]Entry
	allowances map[string]*big.Int
}

func NewStore(reader chainReader, mc multicall.Caller, dir *token.Directory, log *zap.Logger) *Store {
	eabi, _ := abi.JSON(strings.NewReader(erc20ReadABI))
	return &Store{
		reader:     reader,
		mc:         mc,
		dir:        dir,
		log:        log,
		eabi:       eabi,
		balances:   make(map[string]Entry),
		allowances: make(map[string]*big.Int),
	}
}

// Balance returns the raw balance for a token address, nil when unknown.
func (s *Store) Balance(address string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.balances[strings.ToLower(address)]; ok {
		return e.Value
	}
	return nil
}

// BalanceEntry returns the display entry for a token address.
func (s *Store) BalanceEntry(address string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.balances[strings.ToLower(address)]
	return e, ok
}

// Allowance returns the exchange allowance for a token address, nil when
// unknown.
func (s *Store) Allowance(address string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowances[strings.ToLower(address)]
}

// Refresh re-reads balances and allowances for the given token
// addresses, or for every directory token when tokens is nil. Without a
// signer the store is cleared: no user, no balances.
func (s *Store) Refresh(ctx context.Context, tokens []string) error {
	if !s.reader.HasSigner() {
		s.mu.Lock()
		s.balances = make(map[string]Entry)
		s.allowances = make(map[string]*big.Int)
		s.mu.Unlock()
		return nil
	}
	if tokens == nil {
		tokens = s.dir.Tokens()
	}

	owner := s.reader.Sender()
	balances := make(map[string]*big.Int, len(tokens))
	allowances := make(map[string]*big.Int, len(tokens))

	var erc20s []string
	for _, addr := range tokens {
		addr = strings.ToLower(addr)
		if addr == strings.ToLower(token.NativeAddress) {
			bal, err := s.reader.NativeBalance(ctx, owner)
			if err != nil {
				return fmt.Errorf("native balance: %w", err)
			}
			balances[addr] = bal
			allowances[addr] = new(big.Int).Set(chain.MaxUint256)
			continue
		}
		erc20s = append(erc20s, addr)
	}

	var err error
	if s.mc != nil {
		err = s.refreshBatched(ctx, owner, erc20s, balances, allowances)
	} else {
		err = s.refreshSequential(ctx, owner, erc20s, balances, allowances)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	for addr, bal := range balances {
		s.balances[addr] = s.entryFor(addr, bal)
	}
	for addr, allowance := range allowances {
		s.allowances[addr] = allowance
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) refreshBatched(ctx context.Context, owner common.Address, tokens []string, balances, allowances map[string]*big.Int) error {
	if len(tokens) == 0 {
		return nil
	}
	spender := s.reader.Exchange()
	calls := make([]multicall.Call, 0, len(tokens)*2)
	for _, addr := range tokens {
		target := common.HexToAddress(addr)
		balData, err := s.eabi.Pack("balanceOf", owner)
		if err != nil {
			return fmt.Errorf("pack balanceOf: %w", err)
		}
		allowData, err := s.eabi.Pack("allowance", owner, spender)
		if err != nil {
			return fmt.Errorf("pack allowance: %w", err)
		}
		calls = append(calls,
			multicall.Call{Target: target, CallData: balData},
			multicall.Call{Target: target, CallData: allowData},
		)
	}

	results, err := s.mc.Aggregate(ctx, calls)
	if err != nil {
		return fmt.Errorf("wallet: aggregate: %w", err)
	}
	for i, addr := range tokens {
		bal, err := s.unpackAmount("balanceOf", results[i*2])
		if err != nil {
			s.log.Debug("wallet: bad balanceOf result", zap.String("token", addr), zap.Error(err))
			continue
		}
		allowance, err := s.unpackAmount("allowance", results[i*2+1])
		if err != nil {
			s.log.Debug("wallet: bad allowance result", zap.String("token", addr), zap.Error(err))
			continue
		}
		balances[addr] = bal
		allowances[addr] = allowance
	}
	return nil
}

func (s *Store) refreshSequential(ctx context.Context, owner common.Address, tokens []string, balances, allowances map[string]*big.Int) error {
	for _, addr := range tokens {
		target := common.HexToAddress(addr)
		bal, err := s.reader.BalanceOf(ctx, target, owner)
		if err != nil {
			return fmt.Errorf("balanceOf %s: %w", addr, err)
		}
		allowance, err := s.reader.Allowance(ctx, target, owner)
		if err != nil {
			return fmt.Errorf("allowance %s: %w", addr, err)
		}
		balances[addr] = bal
		allowances[addr] = allowance
	}
	return nil
}

func (s *Store) unpackAmount(method string, r multicall.Result) (*big.Int, error) {
	if !r.Success {
		return nil, fmt.Errorf("%s call reverted", method)
	}
	var out *big.Int
	if err := s.eabi.UnpackIntoInterface(&out, method, r.Data); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) entryFor(addr string, value *big.Int) Entry {
	decimals := 18
	if info, ok := s.dir.Lookup(addr); ok {
		decimals = info.Decimals
	}
	return Entry{Value: value, Readable: swap.AmountToFloat(value, decimals)}
}

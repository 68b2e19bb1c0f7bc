package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/api"
	"github.com/ZigZagExchange/zigzag-swap/internal/chain"
	"github.com/ZigZagExchange/zigzag-swap/internal/config"
	"github.com/ZigZagExchange/zigzag-swap/internal/engine"
	"github.com/ZigZagExchange/zigzag-swap/internal/executor"
	"github.com/ZigZagExchange/zigzag-swap/internal/gas"
	"github.com/ZigZagExchange/zigzag-swap/internal/metrics"
	"github.com/ZigZagExchange/zigzag-swap/internal/multicall"
	"github.com/ZigZagExchange/zigzag-swap/internal/orderbook"
	"github.com/ZigZagExchange/zigzag-swap/internal/prices"
	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/quotefeed"
	"github.com/ZigZagExchange/zigzag-swap/internal/swap"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
	"github.com/ZigZagExchange/zigzag-swap/internal/wallet"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("signal received, shutting down")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, logger)

	chainClient, err := chain.Dial(cfg.Network.RPCHTTP, cfg.Network.WalletPK, cfg.Network.WrappedNative, logger)
	if err != nil {
		logger.Fatal("dial rpc", zap.Error(err))
	}
	if !chainClient.HasSigner() {
		logger.Warn("no wallet key configured, running read-only")
	}

	native := token.Info{
		Address:  token.NativeAddress,
		Symbol:   cfg.Network.NativeSymbol,
		Decimals: cfg.Network.NativeDecimals,
		Name:     cfg.Network.NativeSymbol,
	}
	dir := token.NewDirectory(cfg.Network.BackendURL, cfg.Network.WrappedNative, native, logger)

	mc, err := multicall.New(chainClient.Raw(), common.HexToAddress(cfg.Network.Multicall))
	if err != nil {
		logger.Fatal("init multicall", zap.Error(err))
	}

	cache := orderbook.NewCache(
		orderbook.NewClient(cfg.Network.BackendURL, logger),
		cfg.ExpiryMargin(), logger)
	store := swap.NewStore(cfg.Network.WrappedNative, cfg.Swap.NativeReserve,
		cfg.Network.NativeDecimals, cfg.Swap.MaxInputDecimals, logger)
	walletStore := wallet.NewStore(chainClient, mc, dir, logger)
	priceFeed := prices.NewFeed(cfg.PriceFeed.BaseURL, dir, logger)
	gasEst := gas.NewEstimator(chainClient, cfg.Network.WrappedNative,
		cfg.Network.NativeDecimals, logger)
	exec := executor.New(chainClient, cfg.Network.WrappedNative,
		int64(cfg.Swap.DustThresholdBps), cfg.ExpiryMargin(), cfg.ResultDisplay(),
		cfg.ReceiptTimeout(), executor.GasLimits{
			Fill:    cfg.Network.GasLimitFill,
			Wrap:    cfg.Network.GasLimitWrap,
			Approve: cfg.Network.GasLimitApprove,
		}, logger)
	feed := quotefeed.NewPublisher(cfg, logger)
	defer feed.Close()

	eng := engine.New(cfg, engine.Deps{
		Chain:    chainClient,
		Dir:      dir,
		Cache:    cache,
		Selector: quote.NewSelector(cfg.ExpiryMargin()),
		Store:    store,
		Wallet:   walletStore,
		Prices:   priceFeed,
		Gas:      gasEst,
		Exec:     exec,
		Feed:     feed,
	}, logger)

	srv := api.NewServer(cfg.API.ListenAddr, eng.Apply, logger)
	eng.OnFrame(func(frame engine.Frame) { srv.Publish(frame) })

	if err := eng.Start(ctx); err != nil {
		logger.Fatal("start engine", zap.Error(err))
	}
	defer eng.Stop()

	logger.Info("swapd running",
		zap.String("network", cfg.Network.Name),
		zap.String("api", cfg.API.ListenAddr),
		zap.Bool("redis", feed.Enabled()),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("api server", zap.Error(err))
	}
}

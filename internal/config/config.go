package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Network struct {
		Name            string `yaml:"name"`
		ChainID         int64  `yaml:"chain_id"`
		BackendURL      string `yaml:"backend_url"`
		RPCHTTP         string `yaml:"rpc_http"`
		WrappedNative   string `yaml:"wrapped_native"`
		NativeSymbol    string `yaml:"native_symbol"`
		NativeDecimals  int    `yaml:"native_decimals"`
		WalletPK        string `yaml:"wallet_pk"`
		Multicall       string `yaml:"multicall"`
		GasLimitFill    uint64 `yaml:"gas_limit_fill"`
		GasLimitWrap    uint64 `yaml:"gas_limit_wrap"`
		GasLimitApprove uint64 `yaml:"gas_limit_approve"`
	} `yaml:"network"`

	Pair struct {
		SellToken string `yaml:"sell_token"`
		BuyToken  string `yaml:"buy_token"`
	} `yaml:"pair"`

	Timings struct {
		OrderBookPollMs   int `yaml:"order_book_poll_ms"`
		GasPollMs         int `yaml:"gas_poll_ms"`
		PricePollMs       int `yaml:"price_poll_ms"`
		MarketsPollMs     int `yaml:"markets_poll_ms"`
		ResultDisplayMs   int `yaml:"result_display_ms"`
		ExpiryMarginSec   int `yaml:"expiry_margin_sec"`
		ReceiptTimeoutSec int `yaml:"receipt_timeout_sec"`
	} `yaml:"timings"`

	Swap struct {
		DustThresholdBps int     `yaml:"dust_threshold_bps"`
		NativeReserve    float64 `yaml:"native_reserve"`
		MaxInputDecimals int     `yaml:"max_input_decimals"`
	} `yaml:"swap"`

	PriceFeed struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"price_feed"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Stream   string `yaml:"stream"`
		SnapKey  string `yaml:"snap_key"`
	} `yaml:"redis"`

	API struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Timings.OrderBookPollMs == 0 {
		c.Timings.OrderBookPollMs = 4500
	}
	if c.Timings.GasPollMs == 0 {
		c.Timings.GasPollMs = 15000
	}
	if c.Timings.PricePollMs == 0 {
		c.Timings.PricePollMs = 60000
	}
	if c.Timings.MarketsPollMs == 0 {
		c.Timings.MarketsPollMs = 150000
	}
	if c.Timings.ResultDisplayMs == 0 {
		c.Timings.ResultDisplayMs = 3000
	}
	if c.Timings.ExpiryMarginSec == 0 {
		c.Timings.ExpiryMarginSec = 12
	}
	if c.Timings.ReceiptTimeoutSec == 0 {
		c.Timings.ReceiptTimeoutSec = 120
	}
	if c.Swap.DustThresholdBps == 0 {
		c.Swap.DustThresholdBps = 9999
	}
	if c.Swap.NativeReserve == 0 {
		c.Swap.NativeReserve = 0.005
	}
	if c.Swap.MaxInputDecimals == 0 {
		c.Swap.MaxInputDecimals = 10
	}
	if c.Network.NativeSymbol == "" {
		c.Network.NativeSymbol = "ETH"
	}
	if c.Network.NativeDecimals == 0 {
		c.Network.NativeDecimals = 18
	}
	if c.Network.GasLimitFill == 0 {
		c.Network.GasLimitFill = 300000
	}
	if c.Network.GasLimitWrap == 0 {
		c.Network.GasLimitWrap = 60000
	}
	if c.Network.GasLimitApprove == 0 {
		c.Network.GasLimitApprove = 60000
	}
	if c.Network.Multicall == "" {
		c.Network.Multicall = "0xcA11bde05977b3631167028862bE2a173976CA11"
	}
	if c.PriceFeed.BaseURL == "" {
		c.PriceFeed.BaseURL = "https://api.coincap.io/v2"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "quote:stream"
	}
	if c.Redis.SnapKey == "" {
		c.Redis.SnapKey = "quote:snap:"
	}
}

func (c *Config) OrderBookPoll() time.Duration {
	return time.Duration(c.Timings.OrderBookPollMs) * time.Millisecond
}
func (c *Config) GasPoll() time.Duration {
	return time.Duration(c.Timings.GasPollMs) * time.Millisecond
}
func (c *Config) PricePoll() time.Duration {
	return time.Duration(c.Timings.PricePollMs) * time.Millisecond
}
func (c *Config) MarketsPoll() time.Duration {
	return time.Duration(c.Timings.MarketsPollMs) * time.Millisecond
}
func (c *Config) ResultDisplay() time.Duration {
	return time.Duration(c.Timings.ResultDisplayMs) * time.Millisecond
}
func (c *Config) ExpiryMargin() time.Duration {
	return time.Duration(c.Timings.ExpiryMarginSec) * time.Second
}
func (c *Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.Timings.ReceiptTimeoutSec) * time.Second
}

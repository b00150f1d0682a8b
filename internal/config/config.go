package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultChainID is Base mainnet. Addresses come from the per-chain book
// in chains.go and may be overridden per-field in the yaml file.
const DefaultChainID = ChainBase

type ChainCfg struct {
	ID           int64  `yaml:"id"`
	RPCHTTP      string `yaml:"rpc_http"`
	RPCWS        string `yaml:"rpc_ws"`
	WalletPK     string `yaml:"wallet_pk"`
	GasLimitSwap uint64 `yaml:"gas_limit_swap"`
}

type ContractsCfg struct {
	UniversalRouter string `yaml:"universal_router"`
	QuoterV2        string `yaml:"quoter_v2"`
	Permit2         string `yaml:"permit2"`
	AeroRouter      string `yaml:"aero_router"`
	AeroFactory     string `yaml:"aero_factory"`
	Multicall       string `yaml:"multicall"`
	WETH            string `yaml:"weth"`
}

type FeesCfg struct {
	PlatformBps     int     `yaml:"platform_bps"`
	Recipient       string  `yaml:"recipient"`
	ReferralShare   float64 `yaml:"referral_share"` // fraction of the platform fee
	MinFeeUSD       float64 `yaml:"min_fee_usd"`
	MaxSlippageBps  int     `yaml:"max_slippage_bps"`
	DefaultSlipBps  int     `yaml:"default_slippage_bps"`
	DeadlineMinutes int     `yaml:"deadline_minutes"`
}

type TokenCfg struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals int    `yaml:"decimals"`
}

type RedisCfg struct {
	Addr           string `yaml:"addr"`
	DB             int    `yaml:"db"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ActivityStream string `yaml:"activity_stream"`
	PriceNS        string `yaml:"price_ns"`
}

type PricesCfg struct {
	URL            string             `yaml:"url"`
	RefreshSeconds int                `yaml:"refresh_seconds"`
	TTLSeconds     int                `yaml:"ttl_seconds"`
	Static         map[string]float64 `yaml:"static"` // symbol -> USD, used when no feed is reachable
}

type ServerCfg struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	PublicURL   string `yaml:"public_url"` // base URL embedded in frame meta tags
}

type TimingsCfg struct {
	QuoteIntervalMs  int `yaml:"quote_interval_ms"`
	QuoteTimeoutMs   int `yaml:"quote_timeout_ms"`
	ConfirmTimeoutMs int `yaml:"confirm_timeout_ms"`
}

type Config struct {
	Chain     ChainCfg     `yaml:"chain"`
	Contracts ContractsCfg `yaml:"contracts"`
	Fees      FeesCfg      `yaml:"fees"`
	Tokens    []TokenCfg   `yaml:"tokens"`
	Redis     RedisCfg     `yaml:"redis"`
	Prices    PricesCfg    `yaml:"prices"`
	Server    ServerCfg    `yaml:"server"`
	Timings   TimingsCfg   `yaml:"timings"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns a config pre-filled for Base mainnet. Used by the CLI tools
// when no file is given and as the starting point in tests.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Chain.ID == 0 {
		c.Chain.ID = DefaultChainID
	}
	if c.Chain.GasLimitSwap == 0 {
		c.Chain.GasLimitSwap = 400_000
	}
	if book, err := ContractsFor(c.Chain.ID); err == nil {
		if c.Contracts.UniversalRouter == "" {
			c.Contracts.UniversalRouter = book.UniversalRouter
		}
		if c.Contracts.QuoterV2 == "" {
			c.Contracts.QuoterV2 = book.QuoterV2
		}
		if c.Contracts.Permit2 == "" {
			c.Contracts.Permit2 = book.Permit2
		}
		if c.Contracts.AeroRouter == "" {
			c.Contracts.AeroRouter = book.AeroRouter
		}
		if c.Contracts.AeroFactory == "" {
			c.Contracts.AeroFactory = book.AeroFactory
		}
		if c.Contracts.Multicall == "" {
			c.Contracts.Multicall = book.Multicall
		}
		if c.Contracts.WETH == "" {
			c.Contracts.WETH = book.WETH
		}
	}
	if c.Fees.PlatformBps == 0 {
		c.Fees.PlatformBps = 15
	}
	if c.Fees.ReferralShare == 0 {
		c.Fees.ReferralShare = 0.2
	}
	if c.Fees.MinFeeUSD == 0 {
		c.Fees.MinFeeUSD = 0.01
	}
	if c.Fees.MaxSlippageBps == 0 {
		c.Fees.MaxSlippageBps = 200
	}
	if c.Fees.DefaultSlipBps == 0 {
		c.Fees.DefaultSlipBps = 50
	}
	if c.Fees.DeadlineMinutes == 0 {
		c.Fees.DeadlineMinutes = 15
	}
	if len(c.Tokens) == 0 {
		c.Tokens = DefaultTokensFor(c.Chain.ID)
	}
	if c.Redis.ActivityStream == "" {
		c.Redis.ActivityStream = "defio:activity"
	}
	if c.Redis.PriceNS == "" {
		c.Redis.PriceNS = "defio:price"
	}
	if c.Prices.RefreshSeconds == 0 {
		c.Prices.RefreshSeconds = 30
	}
	if c.Prices.TTLSeconds == 0 {
		c.Prices.TTLSeconds = 120
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Timings.QuoteIntervalMs == 0 {
		c.Timings.QuoteIntervalMs = 5000
	}
	if c.Timings.QuoteTimeoutMs == 0 {
		c.Timings.QuoteTimeoutMs = 4000
	}
	if c.Timings.ConfirmTimeoutMs == 0 {
		c.Timings.ConfirmTimeoutMs = 120_000
	}
}

func (c *Config) validate() error {
	if c.Contracts.UniversalRouter == "" || c.Contracts.QuoterV2 == "" {
		return fmt.Errorf("unsupported chain id %d: set contracts explicitly", c.Chain.ID)
	}
	if c.Fees.PlatformBps < 0 || c.Fees.PlatformBps > 100 {
		return fmt.Errorf("fees.platform_bps must be within [0, 100], got %d", c.Fees.PlatformBps)
	}
	if c.Fees.ReferralShare < 0 || c.Fees.ReferralShare > 1 {
		return fmt.Errorf("fees.referral_share must be within [0, 1], got %v", c.Fees.ReferralShare)
	}
	if c.Fees.DefaultSlipBps > c.Fees.MaxSlippageBps {
		return fmt.Errorf("fees.default_slippage_bps %d exceeds max %d", c.Fees.DefaultSlipBps, c.Fees.MaxSlippageBps)
	}
	return nil
}

func (c *Config) QuoteInterval() time.Duration {
	return time.Duration(c.Timings.QuoteIntervalMs) * time.Millisecond
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Timings.QuoteTimeoutMs) * time.Millisecond
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Timings.ConfirmTimeoutMs) * time.Millisecond
}

func (c *Config) SwapDeadline() time.Duration {
	return time.Duration(c.Fees.DeadlineMinutes) * time.Minute
}

func (c *Config) PriceRefresh() time.Duration {
	return time.Duration(c.Prices.RefreshSeconds) * time.Second
}

func (c *Config) PriceTTL() time.Duration {
	return time.Duration(c.Prices.TTLSeconds) * time.Second
}

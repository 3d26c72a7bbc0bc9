package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration loaded from TOML.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`

	Log     Log     `toml:"log"`
	Pool    Pool    `toml:"pool"`
	Farm    Farm    `toml:"farm"`
	Lending Lending `toml:"lending"`
	Orders  Orders  `toml:"orders"`
	Oracle  Oracle  `toml:"oracle"`
	RPC     RPC     `toml:"rpc"`
}

// Log configures the optional rotated log file.
type Log struct {
	Path       string `toml:"Path"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Pool configures the exchange pool fee split.
type Pool struct {
	FeeProtocolBps  uint64 `toml:"FeeProtocolBps"`
	FeeLiquidityBps uint64 `toml:"FeeLiquidityBps"`
	ModuleAccount   string `toml:"ModuleAccount"`
	TreasuryAccount string `toml:"TreasuryAccount"`
}

// Farm configures the staking distributor and reserve accounts.
type Farm struct {
	CustodyAccount string `toml:"CustodyAccount"`
	RewardAccount  string `toml:"RewardAccount"`
	ReserveAccount string `toml:"ReserveAccount"`
}

// Lending configures the borrow market risk parameters. Ratios are
// percentages, rates basis points, the staleness window a duration string.
type Lending struct {
	LenderID               string `toml:"LenderID"`
	CollateralAccount      string `toml:"CollateralAccount"`
	CollateralizationRatio uint64 `toml:"CollateralizationRatio"`
	LiquidationThreshold   uint64 `toml:"LiquidationThreshold"`
	LiquidationBonusBps    uint64 `toml:"LiquidationBonusBps"`
	BaseRateBps            uint64 `toml:"BaseRateBps"`
	UtilizationSlopeBps    uint64 `toml:"UtilizationSlopeBps"`
	StalenessPeriod        string `toml:"StalenessPeriod"`
}

// Orders configures the resting-order engine.
type Orders struct {
	EscrowAccount string `toml:"EscrowAccount"`
	FeeBps        uint64 `toml:"FeeBps"`
}

// Oracle configures price freshness and averaging windows.
type Oracle struct {
	MaxAge     string   `toml:"MaxAge"`
	TWAPWindow string   `toml:"TWAPWindow"`
	Symbols    []string `toml:"Symbols"`
}

// RPC configures the HTTP surface.
type RPC struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8545",
		DataDir:     "./tidepool-data",
		Environment: "local",
		Log: Log{
			MaxSizeMB:  128,
			MaxBackups: 4,
			MaxAgeDays: 14,
		},
		Pool: Pool{
			FeeProtocolBps:  20,
			FeeLiquidityBps: 10,
			ModuleAccount:   "module/pool",
			TreasuryAccount: "module/treasury",
		},
		Farm: Farm{
			CustodyAccount: "module/farm",
			RewardAccount:  "module/farm-rewards",
			ReserveAccount: "module/farm-reserve",
		},
		Lending: Lending{
			LenderID:               "module/lending",
			CollateralAccount:      "module/lending-collateral",
			CollateralizationRatio: 150,
			LiquidationThreshold:   120,
			LiquidationBonusBps:    500,
			BaseRateBps:            200,
			UtilizationSlopeBps:    1000,
			StalenessPeriod:        "5m",
		},
		Orders: Orders{
			EscrowAccount: "module/orders",
			FeeBps:        10,
		},
		Oracle: Oracle{
			MaxAge:     "2m",
			TWAPWindow: "30m",
			Symbols:    []string{},
		},
		RPC: RPC{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// Load reads the configuration from path, writing and returning the
// defaults when the file does not exist yet.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that the engines would misbehave under.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if c.Pool.FeeProtocolBps+c.Pool.FeeLiquidityBps >= 10_000 {
		return fmt.Errorf("config: pool fees must sum below 10000 bps")
	}
	if c.Orders.FeeBps >= 10_000 {
		return fmt.Errorf("config: order fee must be below 10000 bps")
	}
	if c.Lending.CollateralizationRatio < 100 {
		return fmt.Errorf("config: collateralization ratio must be at least 100 percent")
	}
	if c.Lending.LiquidationThreshold < 100 || c.Lending.LiquidationThreshold > c.Lending.CollateralizationRatio {
		return fmt.Errorf("config: liquidation threshold must be between 100 and the collateralization ratio")
	}
	if _, err := c.Lending.Staleness(); err != nil {
		return fmt.Errorf("config: invalid StalenessPeriod: %w", err)
	}
	if _, err := c.Oracle.MaxAgeDuration(); err != nil {
		return fmt.Errorf("config: invalid oracle MaxAge: %w", err)
	}
	if _, err := c.Oracle.TWAPDuration(); err != nil {
		return fmt.Errorf("config: invalid oracle TWAPWindow: %w", err)
	}
	if c.RPC.RequestsPerSecond <= 0 || c.RPC.Burst <= 0 {
		return fmt.Errorf("config: rpc rate limit must be positive")
	}
	return nil
}

// Staleness parses the lending staleness window.
func (l Lending) Staleness() (time.Duration, error) {
	return time.ParseDuration(l.StalenessPeriod)
}

// MaxAgeDuration parses the oracle freshness window.
func (o Oracle) MaxAgeDuration() (time.Duration, error) {
	return time.ParseDuration(o.MaxAge)
}

// TWAPDuration parses the oracle averaging window.
func (o Oracle) TWAPDuration() (time.Duration, error) {
	return time.ParseDuration(o.TWAPWindow)
}

func persist(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

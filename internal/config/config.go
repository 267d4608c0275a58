// Package config defines the TOML configuration for the lead/lag bot.
// Loaded with spf13/viper the same way the teacher's internal/config does
// (mapstructure-tagged structs, env var overrides for secrets), adapted
// from a single-market-maker shape to spec.md §6's exchange-credential and
// per-behavior strategy shape.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level TOML document (spec.md §6).
type Config struct {
	InstanceID     string `mapstructure:"instance_id"`
	MarketWorkerID string `mapstructure:"market_worker_id"`
	LegacyCoreID   string `mapstructure:"legacy_core_id"`
	Trading        bool   `mapstructure:"trading"`
	TakerFee       float64 `mapstructure:"taker_fee"`
	MakerFee       float64 `mapstructure:"maker_fee"`
	RedisURL       string `mapstructure:"redis_url"`
	QuoteIntval    int64  `mapstructure:"quote_intval"`

	DryRun bool `mapstructure:"dry_run"`

	ExCredentialConfigs []ExCredentialConfig `mapstructure:"ex_credential_configs"`

	SpreadEMAConfig EMAConfig `mapstructure:"spread_ema_config"`
	DelayEMAConfig  EMAConfig `mapstructure:"delay_ema_config"`

	StrategyConfig StrategyConfig `mapstructure:"strategy_config"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// ExCredentialConfig is one entry of ex_credential_configs[].
type ExCredentialConfig struct {
	Exchange  string `mapstructure:"exchange"`
	AK        string `mapstructure:"ak"`
	SK        string `mapstructure:"sk"`
	PWD       string `mapstructure:"pwd"`
	ExtraInfo string `mapstructure:"extra_info"`
	UserID    string `mapstructure:"user_id"`
}

// EMAConfig is one {period, intval} pair feeding calc.NewEMAParams.
type EMAConfig struct {
	Period string `mapstructure:"period"`
	Intval int64  `mapstructure:"intval"`
}

// StrategyConfig carries both behavior shapes; exactly one is populated,
// selected by the [strategy_config] table present in the TOML document.
type StrategyConfig struct {
	OffsetTaker *OffsetTakerConfig `mapstructure:"offset_taker"`
	NewCoinMaker *NewCoinMakerConfig `mapstructure:"new_coin_maker"`
}

// OffsetTakerConfig mirrors spec.md §6's OffsetTaker strategy_config shape.
type OffsetTakerConfig struct {
	OffsetConfigs           []EMAConfig           `mapstructure:"offset_configs"`
	LeadMaxDelay            int64                 `mapstructure:"lead_max_delay"`
	LagMaxDelay             int64                 `mapstructure:"lag_max_delay"`
	LeadMaxExpiration       int64                 `mapstructure:"lead_max_expiration"`
	ReportMeasurement       string                `mapstructure:"report_measurement"`
	OrderReportMeasurement  string                `mapstructure:"order_report_measurement"`
	TradeAssets             []OffsetTakerAsset    `mapstructure:"trade_assets"`
}

// OffsetTakerAsset is one trade_assets[] entry for the OffsetTaker behavior.
type OffsetTakerAsset struct {
	Asset           string   `mapstructure:"asset"`
	LeadAsset       string   `mapstructure:"lead_asset"`
	Trading         bool     `mapstructure:"trading"`
	PosLimit        float64  `mapstructure:"pos_limit"`
	PosUnitUSD      float64  `mapstructure:"pos_unit_usd"`
	UseOffsetPeriod string   `mapstructure:"use_offset_period"`
	TakerThreshold  float64  `mapstructure:"taker_threshold"`
	BiasRate        *float64 `mapstructure:"bias_rate"`
}

// NewCoinMakerConfig mirrors spec.md §6's NewCoinMaker strategy_config shape.
type NewCoinMakerConfig struct {
	ReportMeasurement string                  `mapstructure:"report_measurement"`
	TradeAssets       []NewCoinMakerAssetConfig `mapstructure:"trade_assets"`
}

// NewCoinMakerAssetConfig is one trade_assets[] entry for NewCoinMaker.
type NewCoinMakerAssetConfig struct {
	Asset            string  `mapstructure:"asset"`
	Trading          bool    `mapstructure:"trading"`
	TauP             float64 `mapstructure:"tau_p"`
	TauO             float64 `mapstructure:"tau_o"`
	PosUnitUSD       float64 `mapstructure:"pos_unit_usd"`
	PosLimit         float64 `mapstructure:"pos_limit"`
	SigmaMulti       float64 `mapstructure:"sigma_multi"`
	SigmaMinBps      float64 `mapstructure:"sigma_min_bps"`
	OrderMinBpsDiff  float64 `mapstructure:"order_min_bps_diff"`
	OrderMinTickDiff float64 `mapstructure:"order_min_tick_diff"`
}

// LoggingConfig tunes the slog handler, matching the teacher's shape.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads a TOML config file, with credential fields overridable via
// LEADLAG_* environment variables (spec.md §11 supplemented feature).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("LEADLAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	if v := os.Getenv("LEADLAG_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if os.Getenv("LEADLAG_DRY_RUN") == "true" || os.Getenv("LEADLAG_DRY_RUN") == "1" {
		cfg.DryRun = true
	}
	for i := range cfg.ExCredentialConfigs {
		c := &cfg.ExCredentialConfigs[i]
		prefix := "LEADLAG_" + strings.ToUpper(c.Exchange) + "_"
		if v := os.Getenv(prefix + "AK"); v != "" {
			c.AK = v
		}
		if v := os.Getenv(prefix + "SK"); v != "" {
			c.SK = v
		}
		if v := os.Getenv(prefix + "PWD"); v != "" {
			c.PWD = v
		}
	}

	return &cfg, nil
}

// Validate checks required fields and cross-field invariants.
func (c *Config) Validate() error {
	if c.InstanceID == "" {
		return fmt.Errorf("config: instance_id is required")
	}
	if c.QuoteIntval <= 0 {
		return fmt.Errorf("config: quote_intval must be > 0")
	}
	if len(c.ExCredentialConfigs) == 0 {
		return fmt.Errorf("config: at least one ex_credential_configs entry is required")
	}
	for i, ec := range c.ExCredentialConfigs {
		if ec.Exchange == "" {
			return fmt.Errorf("config: ex_credential_configs[%d].exchange is required", i)
		}
		if ec.AK == "" || ec.SK == "" {
			return fmt.Errorf("config: ex_credential_configs[%d] (%s) is missing ak/sk", i, ec.Exchange)
		}
	}

	hasOffsetTaker := c.StrategyConfig.OffsetTaker != nil
	hasNewCoinMaker := c.StrategyConfig.NewCoinMaker != nil
	if hasOffsetTaker == hasNewCoinMaker {
		return fmt.Errorf("config: strategy_config must set exactly one of offset_taker or new_coin_maker")
	}
	if hasOffsetTaker {
		if err := c.StrategyConfig.OffsetTaker.validate(); err != nil {
			return err
		}
	}
	if hasNewCoinMaker {
		if err := c.StrategyConfig.NewCoinMaker.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (oc *OffsetTakerConfig) validate() error {
	if len(oc.OffsetConfigs) == 0 {
		return fmt.Errorf("config: strategy_config.offset_taker.offset_configs must not be empty")
	}
	if len(oc.TradeAssets) == 0 {
		return fmt.Errorf("config: strategy_config.offset_taker.trade_assets must not be empty")
	}
	for i, ta := range oc.TradeAssets {
		if ta.Asset == "" || ta.LeadAsset == "" {
			return fmt.Errorf("config: strategy_config.offset_taker.trade_assets[%d] missing asset/lead_asset", i)
		}
	}
	return nil
}

func (nc *NewCoinMakerConfig) validate() error {
	if len(nc.TradeAssets) == 0 {
		return fmt.Errorf("config: strategy_config.new_coin_maker.trade_assets must not be empty")
	}
	for i, ta := range nc.TradeAssets {
		if ta.Asset == "" {
			return fmt.Errorf("config: strategy_config.new_coin_maker.trade_assets[%d] missing asset", i)
		}
	}
	return nil
}

// QuoteInterval returns QuoteIntval as a time.Duration in milliseconds,
// the unit every EMA/cadence field in this config is expressed in.
func (c *Config) QuoteInterval() time.Duration {
	return time.Duration(c.QuoteIntval) * time.Millisecond
}

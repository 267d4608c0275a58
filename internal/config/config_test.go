package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, toml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const offsetTakerTOML = `
instance_id = "inst-1"
quote_intval = 1000

[[ex_credential_configs]]
exchange = "OKX"
ak = "ak"
sk = "sk"
user_id = "u1"

[strategy_config.offset_taker]
report_measurement = "offset_report"
order_report_measurement = "order_report"
lead_max_delay = 500
lag_max_delay = 500
lead_max_expiration = 2000

[[strategy_config.offset_taker.offset_configs]]
period = "1M"
intval = 100

[[strategy_config.offset_taker.trade_assets]]
asset = "OKX:SWAP:BTC-USDT"
lead_asset = "BINANCE:SWAP:BTC-USDT"
trading = true
pos_limit = 1.5
pos_unit_usd = 1000
use_offset_period = "1M"
taker_threshold = 0.0005
`

func TestLoadOffsetTakerConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, offsetTakerTOML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.StrategyConfig.OffsetTaker == nil {
		t.Fatal("expected OffsetTaker to be populated")
	}
	if len(cfg.StrategyConfig.OffsetTaker.TradeAssets) != 1 {
		t.Fatalf("expected 1 trade asset, got %d", len(cfg.StrategyConfig.OffsetTaker.TradeAssets))
	}
	if cfg.StrategyConfig.OffsetTaker.TradeAssets[0].PosLimit != 1.5 {
		t.Errorf("PosLimit = %v, want 1.5", cfg.StrategyConfig.OffsetTaker.TradeAssets[0].PosLimit)
	}
}

func TestValidateRejectsMissingInstanceID(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
quote_intval = 1000
[[ex_credential_configs]]
exchange = "OKX"
ak = "ak"
sk = "sk"
[strategy_config.new_coin_maker]
[[strategy_config.new_coin_maker.trade_assets]]
asset = "OKX:SWAP:BTC-USDT"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject a missing instance_id")
	}
}

func TestValidateRejectsBothStrategiesSet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
instance_id = "inst-1"
quote_intval = 1000
[[ex_credential_configs]]
exchange = "OKX"
ak = "ak"
sk = "sk"
[strategy_config.offset_taker]
[strategy_config.new_coin_maker]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject both strategy variants set")
	}
}

func TestLoadAppliesEnvOverrideForCredentials(t *testing.T) {
	path := writeConfig(t, offsetTakerTOML)

	t.Setenv("LEADLAG_OKX_SK", "overridden-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExCredentialConfigs[0].SK != "overridden-secret" {
		t.Errorf("SK = %q, want env override to apply", cfg.ExCredentialConfigs[0].SK)
	}
}

// Lead/lag trading engine — watches a fast-moving "lead" market and
// trades a slower "lag" market against the smoothed price relationship
// between them, or (in its second mode) quotes both sides of a thinly
// traded new listing from a trade-driven volume-weighted price estimate.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires collaborators, runs the loop, waits for SIGINT/SIGTERM
//	internal/strategy          — single-threaded event loop + the two pluggable behaviors (OffsetTaker, NewCoinMaker)
//	internal/calc              — online EMA/TEMA estimators: offset, spread, delay
//	internal/offsetcache       — per-lag grid of period offsets with freshness gating
//	internal/pricing           — theoretical price + linear taker / basic maker pricing models
//	internal/oms               — per-asset order manager: readiness, position limits, cadence, submission
//	internal/exchange          — market bus (WebSocket) and private trading client (REST), rate limited and HMAC-signed
//	internal/persistence       — KV-backed warm-start store and batched EMA-state reporter
//	internal/telemetry         — batched custom-measurement and global-summary reporting
//	internal/risk              — portfolio-level kill switch feeding the private client's safe-to-post gate
//	internal/config            — TOML configuration, env-overridable credentials
//
// Run as: leadlag-bot <config.toml>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadlag/internal/calc"
	"leadlag/internal/config"
	"leadlag/internal/exchange"
	"leadlag/internal/persistence"
	"leadlag/internal/risk"
	"leadlag/internal/strategy"
	"leadlag/internal/telemetry"
	"leadlag/pkg/types"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.toml>\n", os.Args[0])
		os.Exit(1)
	}
	cfgPath := os.Args[1]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kvStore, err := buildKVStore(cfg)
	if err != nil {
		logger.Error("failed to build kv store", "error", err)
		os.Exit(1)
	}
	defer kvStore.Close()

	warmStore := persistence.NewWarmStore(ctx, kvStore)
	persistReporter := persistence.NewReporter(kvStore)

	var telemetrySink telemetry.Sink = telemetry.NullSink{}
	if url := os.Getenv("LEADLAG_TELEMETRY_URL"); url != "" {
		telemetrySink = telemetry.NewHTTPSink(url, "/report")
	}
	telemetryReporter := telemetry.New(cfg.InstanceID, telemetrySink)

	// spec.md §6's config schema has no [risk] table of its own, so this
	// wires a generous fixed ceiling rather than fabricating config fields;
	// the kill switch (drop/window/cooldown) trips only on readings passed
	// to Monitor.Report, which nothing in this binary calls, so SafeToPost
	// stays true here.
	riskMonitor := risk.New(risk.Config{
		MaxPositionPerAsset: 1e9,
		MaxGlobalExposure:   1e9,
		MaxDailyLoss:        1e9,
		KillSwitchDropPct:   0.2,
		KillSwitchWindowSec: 60,
		CooldownAfterKill:   time.Minute,
	})

	marketAssets, err := collectMarketAssets(cfg)
	if err != nil {
		logger.Error("failed to collect market assets", "error", err)
		os.Exit(1)
	}

	clients, err := buildTradingClients(cfg, riskMonitor, logger)
	if err != nil {
		logger.Error("failed to build trading clients", "error", err)
		os.Exit(1)
	}

	assetByKey := make(map[string]types.Asset, len(marketAssets))
	for _, a := range marketAssets {
		assetByKey[a.String()] = a
	}
	marketBus := exchange.NewWSMarketBus(marketDataURL(), func(key string) (types.Asset, bool) {
		a, ok := assetByKey[key]
		return a, ok
	}, logger)

	spreadParams, err := calc.NewEMAParams(cfg.SpreadEMAConfig.Period, cfg.SpreadEMAConfig.Intval)
	if err != nil {
		logger.Error("invalid spread_ema_config", "error", err)
		os.Exit(1)
	}
	delayParams, err := calc.NewEMAParams(cfg.DelayEMAConfig.Period, cfg.DelayEMAConfig.Intval)
	if err != nil {
		logger.Error("invalid delay_ema_config", "error", err)
		os.Exit(1)
	}

	strat, err := strategy.New(strategy.Config{
		Trading:         cfg.Trading,
		QuoteIntvalMs:   cfg.QuoteIntval,
		SpreadEMAParams: spreadParams,
		DelayEMAParams:  delayParams,
		MarketAssets:    marketAssets,
		MarketBus:       marketBus,
		Clients:         clients,
		WarmStore:       warmStore,
		PersistReporter: persistReporter,
		Telemetry:       telemetryReporter,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to build strategy", "error", err)
		os.Exit(1)
	}

	behavior, err := buildBehavior(cfg)
	if err != nil {
		logger.Error("failed to build behavior", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := marketBus.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("market bus run failed", "error", err)
		}
	}()
	if err := marketBus.Subscribe(ctx, marketAssets); err != nil {
		logger.Error("market bus subscribe failed", "error", err)
		os.Exit(1)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- strat.Run(ctx, behavior)
	}()

	logger.Info("lead/lag engine started",
		"instance_id", cfg.InstanceID,
		"trading", cfg.Trading,
		"dry_run", cfg.DryRun,
		"assets", len(marketAssets),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		<-runDone
	case err := <-runDone:
		if err != nil {
			logger.Error("strategy run failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := strat.Close(shutdownCtx); err != nil {
		logger.Error("failed to flush persistence on shutdown", "error", err)
	}
	if err := marketBus.Close(); err != nil {
		logger.Error("failed to close market bus", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildKVStore(cfg *config.Config) (persistence.KVStore, error) {
	if cfg.RedisURL != "" {
		return persistence.NewRedisStore(cfg.RedisURL)
	}
	dir := os.Getenv("LEADLAG_FILE_STORE_DIR")
	if dir == "" {
		dir = "./data"
	}
	return persistence.OpenFileStore(dir)
}

func marketDataURL() string {
	if url := os.Getenv("LEADLAG_MARKET_WS_URL"); url != "" {
		return url
	}
	return "wss://market.invalid/ws"
}

// collectMarketAssets returns every asset the configured strategy needs a
// live ticker for: lead+lag pairs for OffsetTaker, the bare trade list for
// NewCoinMaker.
func collectMarketAssets(cfg *config.Config) ([]types.Asset, error) {
	seen := make(map[types.Asset]bool)
	var assets []types.Asset
	add := func(s string) error {
		a, err := types.ParseAsset(s)
		if err != nil {
			return err
		}
		if !seen[a] {
			seen[a] = true
			assets = append(assets, a)
		}
		return nil
	}

	if oc := cfg.StrategyConfig.OffsetTaker; oc != nil {
		for _, ta := range oc.TradeAssets {
			if err := add(ta.Asset); err != nil {
				return nil, err
			}
			if err := add(ta.LeadAsset); err != nil {
				return nil, err
			}
		}
	}
	if nc := cfg.StrategyConfig.NewCoinMaker; nc != nil {
		for _, ta := range nc.TradeAssets {
			if err := add(ta.Asset); err != nil {
				return nil, err
			}
		}
	}
	return assets, nil
}

// buildTradingClients constructs one RESTClient per configured exchange
// credential, gated on the shared risk monitor's kill switch.
func buildTradingClients(cfg *config.Config, riskMonitor *risk.Monitor, logger *slog.Logger) (map[types.ExchangeID]exchange.TradingClient, error) {
	clients := make(map[types.ExchangeID]exchange.TradingClient, len(cfg.ExCredentialConfigs))
	rl := exchange.NewRateLimiter(350, 50, 300, 30, 150, 15)

	for _, ec := range cfg.ExCredentialConfigs {
		auth := exchange.NewAuth(exchange.Credentials{APIKey: ec.AK, Secret: ec.SK, Passphrase: ec.PWD})
		client := exchange.NewRESTClient(exchange.RESTClientConfig{
			BaseURL: fmt.Sprintf("https://%s.invalid", ec.Exchange),
			DryRun:  cfg.DryRun,
			Safe: func() bool {
				return riskMonitor.SafeToPost(time.Now().UnixMilli())
			},
		}, auth, rl, logger)
		clients[types.ExchangeID(ec.Exchange)] = client
	}
	return clients, nil
}

func buildBehavior(cfg *config.Config) (strategy.Behavior, error) {
	switch {
	case cfg.StrategyConfig.OffsetTaker != nil:
		return strategy.NewOffsetTakerBehavior(*cfg.StrategyConfig.OffsetTaker, cfg.TakerFee), nil
	case cfg.StrategyConfig.NewCoinMaker != nil:
		return strategy.NewNewCoinMakerBehavior(*cfg.StrategyConfig.NewCoinMaker), nil
	default:
		return nil, fmt.Errorf("main: no strategy_config variant set")
	}
}

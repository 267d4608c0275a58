// Package strategy implements the single-threaded event loop every
// behavior runs inside: market-bus dispatch, ticker-cache/spread/delay
// maintenance, order/position sync, and the narrow Strategy facade a
// Behavior uses to report telemetry and submit orders (spec.md §4.10,
// grounded on original_source/src/strategy.rs's Strategy<T>/
// StrategyBehavior<T>). The Rust original polls a synchronous FFI market
// store in a tight loop; here the market bus pushes onto buffered
// channels from its own goroutine and the loop blocks on a select, which
// is the idiomatic Go shape for the same single-consumer, no-lock
// invariant (spec.md §5).
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leadlag/internal/calc"
	"leadlag/internal/exchange"
	"leadlag/internal/oms"
	"leadlag/internal/persistence"
	"leadlag/internal/pricing"
	"leadlag/internal/telemetry"
	"leadlag/pkg/types"
)

// Behavior is the pluggable decision logic the event loop dispatches into.
// Exactly one concrete Behavior runs per Strategy (OffsetTakerBehavior or
// NewCoinMakerBehavior in this repo), matching spec.md §6's "strategy_config
// is a tagged union of exactly one variant".
type Behavior interface {
	OnInit(ctx context.Context, s *Strategy) error
	OnTick(ctx context.Context, s *Strategy, asset types.Asset) error
	OnTrade(ctx context.Context, s *Strategy, asset types.Asset, trades []types.TradeEvent) error
	AssetMaxPosUSD(asset types.Asset) (float64, error)
}

// Config carries every collaborator the event loop needs, built by
// cmd/bot/main.go from the loaded config.Config.
type Config struct {
	Trading       bool
	QuoteIntvalMs int64

	SpreadEMAParams calc.EMAParams
	DelayEMAParams  calc.EMAParams

	MarketAssets []types.Asset
	MarketBus    exchange.MarketBus
	Clients      map[types.ExchangeID]exchange.TradingClient

	WarmStore       WarmStore
	PersistReporter *persistence.Reporter
	Telemetry       *telemetry.Reporter

	Logger *slog.Logger
}

// WarmStore resolves persisted spread/delay EMA values at first-admission
// time, implemented by internal/persistence.WarmStore.
type WarmStore interface {
	SpreadState(asset types.Asset, period string) (float64, bool, error)
	DelayState(asset types.Asset, period string) (float64, bool, error)
}

// Strategy runs the select-driven event loop and exposes the narrow facade a
// Behavior uses to read cached state and emit orders/telemetry — the Go
// analogue of the Rust Strategy<T>'s pub(crate)-visible fields and
// do_taker/do_maker/batch_report_custom_data methods.
type Strategy struct {
	cfg    Config
	logger *slog.Logger

	marketAssetSet map[types.Asset]bool
	lastDepth      map[types.Asset]types.DepthSnapshot

	tradeRuleMap map[types.Asset]pricing.TradeRule
	tickerMap    map[types.Asset]types.Ticker
	spreadMap    map[types.Asset]*calc.SpreadEMA
	delayMap     map[types.Asset]*calc.DelayEMA
	omsMap       map[types.Asset]*oms.Manager
}

// New constructs a Strategy. Behaviors register their tradable assets via
// RegisterAsset from OnInit before the loop starts.
func New(cfg Config) (*Strategy, error) {
	if cfg.MarketBus == nil {
		return nil, fmt.Errorf("strategy: MarketBus is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	assetSet := make(map[types.Asset]bool, len(cfg.MarketAssets))
	for _, a := range cfg.MarketAssets {
		assetSet[a] = true
	}

	return &Strategy{
		cfg:            cfg,
		logger:         cfg.Logger,
		marketAssetSet: assetSet,
		lastDepth:      make(map[types.Asset]types.DepthSnapshot),
		tradeRuleMap:   make(map[types.Asset]pricing.TradeRule),
		tickerMap:      make(map[types.Asset]types.Ticker),
		spreadMap:      make(map[types.Asset]*calc.SpreadEMA),
		delayMap:       make(map[types.Asset]*calc.DelayEMA),
		omsMap:         make(map[types.Asset]*oms.Manager),
	}, nil
}

// RegisterAsset creates the order manager for one tradable asset and
// caches its venue trade rule, rejecting SPOT types (spec.md §3: "only
// non-SPOT types are tradable by this engine"). Call once per configured
// asset from Behavior.OnInit.
func (s *Strategy) RegisterAsset(ctx context.Context, asset types.Asset, trading bool) error {
	if asset.Type == types.AssetSpot {
		return fmt.Errorf("strategy: %s is a SPOT asset, not tradable", asset)
	}
	client, ok := s.cfg.Clients[asset.Exchange]
	if !ok {
		return fmt.Errorf("strategy: no trading client configured for exchange %s", asset.Exchange)
	}
	rule, err := client.TradeRule(ctx, asset)
	if err != nil {
		return fmt.Errorf("strategy: fetch trade rule for %s: %w", asset, err)
	}
	s.tradeRuleMap[asset] = rule

	isTrading := s.cfg.Trading && trading
	s.omsMap[asset] = oms.New(asset, s.cfg.QuoteIntvalMs, isTrading, client)
	return nil
}

// Run invokes behavior.OnInit, then dispatches market-bus events until ctx
// is cancelled. The caller is responsible for starting MarketBus.Run in
// its own goroutine first (spec.md §5: the market bus owns its own I/O;
// the strategy loop only ever consumes).
func (s *Strategy) Run(ctx context.Context, behavior Behavior) error {
	if err := behavior.OnInit(ctx, s); err != nil {
		return fmt.Errorf("strategy: on_init: %w", err)
	}

	depthCh := s.cfg.MarketBus.DepthEvents()
	tradeCh := s.cfg.MarketBus.TradeEvents()

	for {
		select {
		case <-ctx.Done():
			return nil
		case depth, ok := <-depthCh:
			if !ok {
				return fmt.Errorf("strategy: market bus depth channel closed")
			}
			s.handleDepth(ctx, behavior, depth)
		case trade, ok := <-tradeCh:
			if !ok {
				return fmt.Errorf("strategy: market bus trade channel closed")
			}
			s.handleTrade(ctx, behavior, trade)
		}
	}
}

// Close flushes any buffered persistence writes on a clean shutdown.
func (s *Strategy) Close(ctx context.Context) error {
	if s.cfg.PersistReporter == nil {
		return nil
	}
	return s.cfg.PersistReporter.Flush(ctx, time.Now().UnixMilli())
}

func (s *Strategy) handleDepth(ctx context.Context, behavior Behavior, depth types.DepthSnapshot) {
	s.lastDepth[depth.Asset] = depth
	s.dispatch(ctx, behavior, depth.Asset, depth, true, nil)
}

func (s *Strategy) handleTrade(ctx context.Context, behavior Behavior, trade types.TradeEvent) {
	depth, ok := s.lastDepth[trade.Asset]
	s.dispatch(ctx, behavior, trade.Asset, depth, ok, &trade)
}

// dispatch is the per-event-iteration sequence (spec.md §4.10): (1) market
// bus/private client I/O already happened in the caller's goroutines; (2)
// exit is governed by ctx, checked by the Run select; (3) trade delivery;
// (4) periodic global report; (5) ticker-cache admission with
// spread/delay EMA maintenance; (6) position sync; (7) tick delivery.
func (s *Strategy) dispatch(ctx context.Context, behavior Behavior, asset types.Asset, depth types.DepthSnapshot, hasDepth bool, trade *types.TradeEvent) {
	nowMs := time.Now().UnixMilli()

	if trade != nil {
		if err := behavior.OnTrade(ctx, s, asset, []types.TradeEvent{*trade}); err != nil {
			s.logger.Warn("on_trade failed", "asset", asset, "error", err)
		}
	}

	s.reportGlobal(ctx, nowMs)

	if !s.marketAssetSet[asset] || !hasDepth {
		return
	}

	ticker, updated := s.updateTickerCache(ctx, asset, depth, nowMs)
	if !updated {
		return
	}

	if err := s.syncOrderPosition(ctx, asset, ticker); err != nil {
		s.logger.Warn("sync_order_position failed", "asset", asset, "error", err)
		return
	}

	if err := behavior.OnTick(ctx, s, asset); err != nil {
		s.logger.Warn("on_tick failed", "asset", asset, "error", err)
	}
}

// updateTickerCache admits a new ticker only when transaction_ms strictly
// advances past the previously cached value, constructing (and
// warm-starting) the asset's SpreadEMA/DelayEMA on first admission, and
// persisting the freshly smoothed spread/delay on every admission
// (spec.md §4.10 step 5, grounded on original_source/src/strategy.rs's
// update_ticker_cache).
func (s *Strategy) updateTickerCache(ctx context.Context, asset types.Asset, depth types.DepthSnapshot, nowMs int64) (types.Ticker, bool) {
	ticker, ok := types.FromDepth(depth)
	if !ok {
		return types.Ticker{}, false
	}

	if prev, known := s.tickerMap[asset]; known && ticker.TransactionMs <= prev.TransactionMs {
		return types.Ticker{}, false
	}
	s.tickerMap[asset] = ticker

	spread, hasSpread := s.spreadMap[asset]
	if !hasSpread {
		spread = calc.NewSpreadEMA(s.cfg.SpreadEMAParams, s.warmSpread(asset))
		s.spreadMap[asset] = spread
	}
	spread.Update(ticker.Spread(), nowMs)

	delay, hasDelay := s.delayMap[asset]
	if !hasDelay {
		delay = calc.NewDelayEMA(s.cfg.DelayEMAParams, s.warmDelay(asset))
		s.delayMap[asset] = delay
	}
	delay.Update(float64(ticker.Delay()), nowMs)

	if s.cfg.PersistReporter != nil {
		key := fmt.Sprintf("%s_%s", asset.String(), s.cfg.SpreadEMAParams.Period)
		if err := s.cfg.PersistReporter.Record(ctx, persistence.BucketSpread, key, spread.Value, nowMs); err != nil {
			s.logger.Warn("persist spread failed", "asset", asset, "error", err)
		}
		if err := s.cfg.PersistReporter.Record(ctx, persistence.BucketDelay, key, delay.Delay, nowMs); err != nil {
			s.logger.Warn("persist delay failed", "asset", asset, "error", err)
		}
	}

	return ticker, true
}

func (s *Strategy) warmSpread(asset types.Asset) *float64 {
	if s.cfg.WarmStore == nil {
		return nil
	}
	v, found, err := s.cfg.WarmStore.SpreadState(asset, s.cfg.SpreadEMAParams.Period)
	if err != nil || !found {
		return nil
	}
	return &v
}

func (s *Strategy) warmDelay(asset types.Asset) *float64 {
	if s.cfg.WarmStore == nil {
		return nil
	}
	v, found, err := s.cfg.WarmStore.DelayState(asset, s.cfg.DelayEMAParams.Period)
	if err != nil || !found {
		return nil
	}
	return &v
}

// syncOrderPosition refreshes one asset's order manager from its private
// client, converting the reported base-asset volume to USD via the
// current mid price (spec.md §4.10 step 6). A no-op if the asset has no
// registered order manager.
func (s *Strategy) syncOrderPosition(ctx context.Context, asset types.Asset, ticker types.Ticker) error {
	manager, ok := s.omsMap[asset]
	if !ok {
		return nil
	}
	client, ok := s.cfg.Clients[asset.Exchange]
	if !ok {
		return fmt.Errorf("strategy: no trading client for exchange %s", asset.Exchange)
	}
	snap, err := client.Position(ctx, asset)
	if err != nil {
		return fmt.Errorf("strategy: fetch position for %s: %w", asset, err)
	}
	usdPosition := snap.CurrentUSDVolume * ticker.Mid()
	manager.SyncPositionAndOrders(snap, usdPosition)
	return nil
}

func (s *Strategy) reportGlobal(ctx context.Context, nowMs int64) {
	if s.cfg.Telemetry == nil {
		return
	}
	if err := s.cfg.Telemetry.ReportGlobal(ctx, nowMs); err != nil {
		s.logger.Warn("report_global failed", "error", err)
	}
}

// Ticker returns the cached ticker for asset, if admitted at least once.
func (s *Strategy) Ticker(asset types.Asset) (types.Ticker, bool) {
	t, ok := s.tickerMap[asset]
	return t, ok
}

// DelayEMA returns the asset's delay estimator, if constructed.
func (s *Strategy) DelayEMA(asset types.Asset) (*calc.DelayEMA, bool) {
	d, ok := s.delayMap[asset]
	return d, ok
}

// TradeRule returns the asset's cached venue tick/lot rule.
func (s *Strategy) TradeRule(asset types.Asset) (pricing.TradeRule, bool) {
	r, ok := s.tradeRuleMap[asset]
	return r, ok
}

// AssetUSDPosition returns the asset's current virtual USD position, or an
// error if the asset has no order manager or its position is not yet
// known (spec.md §4.9/§4.11).
func (s *Strategy) AssetUSDPosition(asset types.Asset) (float64, error) {
	m, ok := s.omsMap[asset]
	if !ok {
		return 0, fmt.Errorf("strategy: no order manager for %s", asset)
	}
	st := m.State()
	if !st.PositionKnown {
		return 0, fmt.Errorf("strategy: %s position not yet known", asset)
	}
	return st.VirtualUSDPosition, nil
}

// DoTaker submits a taker intent through the asset's order manager.
func (s *Strategy) DoTaker(ctx context.Context, intent types.OrderIntent) error {
	m, ok := s.omsMap[intent.Asset]
	if !ok {
		return fmt.Errorf("strategy: no order manager for %s", intent.Asset)
	}
	return m.DoTaker(ctx, intent)
}

// DoMaker submits a maker intent through the asset's order manager.
func (s *Strategy) DoMaker(ctx context.Context, intent types.OrderIntent) error {
	m, ok := s.omsMap[intent.Asset]
	if !ok {
		return fmt.Errorf("strategy: no order manager for %s", intent.Asset)
	}
	return m.DoMaker(ctx, intent)
}

// BatchReport forwards to the telemetry reporter's per-measurement batch
// cache, the Go analogue of Strategy<T>::batch_report_custom_data.
func (s *Strategy) BatchReport(ctx context.Context, measurement, tagKey string, fields map[string]float64, nowMs int64) {
	if s.cfg.Telemetry == nil {
		return
	}
	if err := s.cfg.Telemetry.AddBatchReportData(ctx, measurement, tagKey, fields, nowMs); err != nil {
		s.logger.Warn("batch_report failed", "measurement", measurement, "tag", tagKey, "error", err)
	}
}

// SingleReport forwards to the telemetry reporter's single-row queue, the
// Go analogue of Strategy<T>::report_single_custom_data.
func (s *Strategy) SingleReport(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, nowMs int64) {
	if s.cfg.Telemetry == nil {
		return
	}
	if err := s.cfg.Telemetry.AddSingleReportData(ctx, measurement, tags, fields, nowMs); err != nil {
		s.logger.Warn("single_report failed", "measurement", measurement, "error", err)
	}
}

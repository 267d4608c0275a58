package strategy

import (
	"context"
	"fmt"
	"time"

	"leadlag/internal/calc"
	"leadlag/internal/config"
	"leadlag/internal/offsetcache"
	"leadlag/internal/persistence"
	"leadlag/internal/pricing"
	"leadlag/pkg/types"
)

// OffsetTakerBehavior trades a lag asset against the smoothed lead/lag
// offset whenever the lead ticks, and advances the shared offset cache
// whenever the lag ticks (spec.md §4.11, grounded on
// original_source/lead_lag_hft/src/offset_taker_strategy/mod.rs).
type OffsetTakerBehavior struct {
	cfg      config.OffsetTakerConfig
	takerFee float64

	lead2lag map[types.Asset]types.Asset
	lag2lead map[types.Asset]types.Asset

	maxUSDPosMap map[types.Asset]float64
	usePeriodMap map[types.Asset]string
	pricingMap   map[types.Asset]*pricing.LinearTaker

	offsetCache *offsetcache.Cache
}

// NewOffsetTakerBehavior constructs an uninitialized behavior; OnInit
// populates the lead/lag maps and offset cache from cfg.
func NewOffsetTakerBehavior(cfg config.OffsetTakerConfig, takerFee float64) *OffsetTakerBehavior {
	return &OffsetTakerBehavior{
		cfg:          cfg,
		takerFee:     takerFee,
		lead2lag:     make(map[types.Asset]types.Asset),
		lag2lead:     make(map[types.Asset]types.Asset),
		maxUSDPosMap: make(map[types.Asset]float64),
		usePeriodMap: make(map[types.Asset]string),
		pricingMap:   make(map[types.Asset]*pricing.LinearTaker),
		offsetCache: offsetcache.New(offsetcache.Thresholds{
			LeadMaxDelay:      cfg.LeadMaxDelay,
			LagMaxDelay:       cfg.LagMaxDelay,
			LeadMaxExpiration: cfg.LeadMaxExpiration,
		}),
	}
}

// OnInit builds the lead<->lag maps, per-asset LinearTaker pricing models,
// the offset cache's period grid (warm-started from s's WarmStore), and
// registers every lag asset's order manager.
func (b *OffsetTakerBehavior) OnInit(ctx context.Context, s *Strategy) error {
	periodConfigs := make([]calc.EMAParams, 0, len(b.cfg.OffsetConfigs))
	for _, oc := range b.cfg.OffsetConfigs {
		params, err := calc.NewEMAParams(oc.Period, oc.Intval)
		if err != nil {
			return fmt.Errorf("offset_taker: on_init: %w", err)
		}
		periodConfigs = append(periodConfigs, params)
	}

	lead2lag := make(map[types.Asset]types.Asset, len(b.cfg.TradeAssets))
	for _, ta := range b.cfg.TradeAssets {
		lead, err := types.ParseAsset(ta.LeadAsset)
		if err != nil {
			return fmt.Errorf("offset_taker: on_init: %w", err)
		}
		lag, err := types.ParseAsset(ta.Asset)
		if err != nil {
			return fmt.Errorf("offset_taker: on_init: %w", err)
		}
		b.lead2lag[lead] = lag
		b.lag2lead[lag] = lead
		lead2lag[lead] = lag

		b.maxUSDPosMap[lag] = ta.PosUnitUSD * ta.PosLimit
		b.usePeriodMap[lag] = ta.UseOffsetPeriod
		b.pricingMap[lag] = pricing.NewLinearTaker(ta.TakerThreshold, b.takerFee, ta.PosUnitUSD, ta.PosLimit, ta.BiasRate)

		if err := s.RegisterAsset(ctx, lag, ta.Trading); err != nil {
			return fmt.Errorf("offset_taker: on_init: %w", err)
		}
	}

	var warmStore offsetCacheWarmStore
	if ws, ok := s.cfg.WarmStore.(offsetCacheWarmStore); ok {
		warmStore = ws
	}
	if err := b.offsetCache.Init(lead2lag, periodConfigs, warmStore); err != nil {
		return fmt.Errorf("offset_taker: on_init: %w", err)
	}
	return nil
}

// offsetCacheWarmStore is the narrower shape offsetcache.Cache.Init wants;
// internal/persistence.WarmStore satisfies both it and strategy.WarmStore.
type offsetCacheWarmStore interface {
	OffsetState(lag types.Asset, period string) (calc.OffsetEMAState, bool, error)
}

// OnTick implements both halves of spec.md §4.11: a lead tick runs the
// delay-gated taker pricing pipeline against its matched lag; a lag tick
// advances the offset cache and fans out every period's offsets.
func (b *OffsetTakerBehavior) OnTick(ctx context.Context, s *Strategy, asset types.Asset) error {
	nowMs := time.Now().UnixMilli()

	if lag, isLead := b.lead2lag[asset]; isLead {
		return b.onLeadTick(ctx, s, asset, lag, nowMs)
	}
	if _, isLag := b.lag2lead[asset]; isLag {
		return b.onLagTick(s, asset, nowMs)
	}
	s.logger.Warn("offset_taker: asset is neither lead nor lag", "asset", asset)
	return nil
}

func (b *OffsetTakerBehavior) onLeadTick(ctx context.Context, s *Strategy, lead, lag types.Asset, nowMs int64) error {
	leadTicker, ok := s.Ticker(lead)
	if !ok {
		return nil
	}
	if !b.delayCheck(s, leadTicker) {
		return nil
	}

	lagTicker, ok := s.Ticker(lag)
	if !ok {
		s.logger.Warn("offset_taker: lag ticker not found", "lag", lag)
		return nil
	}

	s.BatchReport(ctx, b.cfg.ReportMeasurement, lag.String(), map[string]float64{"mid_price": lagTicker.Mid()}, nowMs)

	usePeriod, ok := b.usePeriodMap[lag]
	if !ok {
		s.logger.Warn("offset_taker: trade offset period not found", "lag", lag)
		return nil
	}
	offset, ok := b.offsetCache.GetOffset(lead, usePeriod)
	if !ok {
		s.logger.Warn("offset_taker: offset not found", "lag", lag, "period", usePeriod)
		return nil
	}
	theoAsk, theoBid, err := pricing.TheoTakerPrice(leadTicker, offset)
	if err != nil {
		s.logger.Warn("offset_taker: theo taker price", "error", err)
		return nil
	}

	position, err := s.AssetUSDPosition(lag)
	if err != nil {
		s.logger.Warn("offset_taker: asset usd position", "error", err)
		return nil
	}

	takerModel, ok := b.pricingMap[lag]
	if !ok {
		s.logger.Warn("offset_taker: pricing model not found", "lag", lag)
		return nil
	}
	rule, ok := s.TradeRule(lag)
	if !ok {
		s.logger.Warn("offset_taker: trade rule not found", "lag", lag)
		return nil
	}

	intents, report := takerModel.GetTakerCtx(pricing.LinearTakerContext{
		TheoBid:     theoBid,
		TheoAsk:     theoAsk,
		Ticker:      lagTicker,
		PositionUSD: position,
		NowMs:       nowMs,
	}, rule)

	s.BatchReport(ctx, b.cfg.ReportMeasurement, lag.String(), map[string]float64{
		"buy_threshold":  report.BuyThreshold,
		"buy_profit":     report.BuyProfit,
		"sell_threshold": report.SellThreshold,
		"sell_profit":    report.SellProfit,
	}, nowMs)

	for _, intent := range intents {
		if err := s.DoTaker(ctx, intent); err != nil {
			s.logger.Warn("offset_taker: do_taker", "lag", lag, "error", err)
		}
	}
	return nil
}

func (b *OffsetTakerBehavior) onLagTick(s *Strategy, lag types.Asset, nowMs int64) error {
	if !b.offsetCache.Initialized() {
		return nil
	}
	lead, ok := b.lag2lead[lag]
	if !ok {
		return nil
	}
	leadTicker, ok := s.Ticker(lead)
	if !ok {
		s.logger.Warn("offset_taker: lead ticker not found while updating offset", "lag", lag)
		return nil
	}
	lagTicker, ok := s.Ticker(lag)
	if !ok {
		return nil
	}

	if err := b.offsetCache.Update(leadTicker, lagTicker, nowMs); err != nil {
		s.logger.Warn("offset_taker: offset cache update", "error", err)
	}

	offsets, ok := b.offsetCache.GetAllOffset(lag)
	if !ok {
		return nil
	}
	fields := make(map[string]float64, len(offsets)*2)
	for _, po := range offsets {
		fields[po.Period+"_bid"] = po.EMA.B2A
		fields[po.Period+"_ask"] = po.EMA.A2B
		b.persistOffset(s, lag, po, nowMs)
	}
	s.BatchReport(context.Background(), b.cfg.ReportMeasurement, lag.String(), fields, nowMs)
	return nil
}

// persistOffset writes one period's four smoothed ratios to BucketOffset
// under keys `{lag}_{period}_{bid2bid|bid2ask|ask2bid|ask2ask}`, matching
// offset_cache.rs::update's redis_reporter.record call so
// WarmStore.OffsetState can warm-start this period on restart.
func (b *OffsetTakerBehavior) persistOffset(s *Strategy, lag types.Asset, po *offsetcache.PeriodOffset, nowMs int64) {
	if s.cfg.PersistReporter == nil {
		return
	}
	base := lag.String() + "_" + po.Period
	ratios := map[string]float64{
		"bid2bid": po.EMA.B2B,
		"bid2ask": po.EMA.B2A,
		"ask2bid": po.EMA.A2B,
		"ask2ask": po.EMA.A2A,
	}
	for flag, val := range ratios {
		if err := s.cfg.PersistReporter.Record(context.Background(), persistence.BucketOffset, base+"_"+flag, val, nowMs); err != nil {
			s.logger.Warn("offset_taker: persist offset ratio", "error", err, "flag", flag)
		}
	}
}

// delayCheck applies spec.md §4.11's raw-and-smoothed lead delay gate.
func (b *OffsetTakerBehavior) delayCheck(s *Strategy, lead types.Ticker) bool {
	delayEMA, ok := s.DelayEMA(lead.Asset)
	if !ok {
		s.logger.Warn("offset_taker: delay data is none", "asset", lead.Asset)
		return false
	}
	if lead.Delay() > b.cfg.LeadMaxDelay {
		return false
	}
	if delayEMA.Delay > float64(b.cfg.LeadMaxDelay) {
		s.logger.Warn("offset_taker: lead ema delay exceeds max", "asset", lead.Asset, "ema_delay", delayEMA.Delay)
		return false
	}
	return true
}

// OnTrade is a no-op: the OffsetTaker behavior derives everything it
// needs from ticks, the same as the Rust original leaving on_trade
// unimplemented for this strategy.
func (b *OffsetTakerBehavior) OnTrade(ctx context.Context, s *Strategy, asset types.Asset, trades []types.TradeEvent) error {
	return nil
}

// AssetMaxPosUSD returns the configured position cap for a lag asset.
func (b *OffsetTakerBehavior) AssetMaxPosUSD(asset types.Asset) (float64, error) {
	v, ok := b.maxUSDPosMap[asset]
	if !ok {
		return 0, fmt.Errorf("offset_taker: no max usd position configured for %s", asset)
	}
	return v, nil
}

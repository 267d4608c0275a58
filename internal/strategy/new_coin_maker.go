package strategy

import (
	"context"
	"fmt"
	"time"

	"leadlag/internal/config"
	"leadlag/internal/persistence"
	"leadlag/internal/pricing"
	"leadlag/pkg/types"
)

// newCoinMakerWarmStore is the narrow persistence shape this behavior
// needs at on_init time; internal/persistence.WarmStore satisfies it.
type newCoinMakerWarmStore interface {
	NewCoinMakerState(asset types.Asset, tauP, tauO float64) (pricing.NewCoinMakerWarmState, error)
}

// newCoinMakerAsset bundles one tracked asset's model, pricing, and
// position cap (spec.md §4.8/§4.12).
type newCoinMakerAsset struct {
	trading    bool
	tauP       float64
	tauO       float64
	model      *pricing.NewCoinMakerModel
	maker      *pricing.BasicMaker
	maxUSDPos  float64
}

// NewCoinMakerBehavior quotes both sides of a thinly-traded asset from a
// trade-driven volume-weighted price and dispersion estimate, with no
// lead asset involved (spec.md §4.8/§4.12, grounded on
// original_source/src/new_coin_maker/new_coin_maker_model.rs — the
// original crate has no on_tick/on_trade dispatch file of its own beyond
// the model and bin/new_coin_maker.rs's bare Strategy::run wiring, so this
// behavior's event dispatch follows spec.md §4.12's prose directly).
type NewCoinMakerBehavior struct {
	cfg               config.NewCoinMakerConfig
	reportMeasurement string
	assets            map[types.Asset]*newCoinMakerAsset
}

// NewNewCoinMakerBehavior constructs an uninitialized behavior; OnInit
// materializes one model/pricing pair per configured asset.
func NewNewCoinMakerBehavior(cfg config.NewCoinMakerConfig) *NewCoinMakerBehavior {
	return &NewCoinMakerBehavior{
		cfg:               cfg,
		reportMeasurement: cfg.ReportMeasurement,
		assets:            make(map[types.Asset]*newCoinMakerAsset),
	}
}

// OnInit materializes a NewCoinMakerModel and BasicMaker per configured
// asset, warm-starting the four TEMAs from the new_coin_maker bucket, and
// registers each asset's order manager.
func (b *NewCoinMakerBehavior) OnInit(ctx context.Context, s *Strategy) error {
	for _, ta := range b.cfg.TradeAssets {
		asset, err := types.ParseAsset(ta.Asset)
		if err != nil {
			return fmt.Errorf("new_coin_maker: on_init: %w", err)
		}

		var warm *pricing.NewCoinMakerWarmState
		if ws, ok := s.cfg.WarmStore.(newCoinMakerWarmStore); ok {
			state, err := ws.NewCoinMakerState(asset, ta.TauP, ta.TauO)
			if err == nil {
				warm = &state
			} else {
				s.logger.Warn("new_coin_maker: warm-start failed", "asset", asset, "error", err)
			}
		}

		b.assets[asset] = &newCoinMakerAsset{
			trading:   ta.Trading,
			tauP:      ta.TauP,
			tauO:      ta.TauO,
			model:     pricing.NewNewCoinMakerModel(ta.TauP, ta.TauO, ta.SigmaMulti, ta.SigmaMinBps, warm),
			maker:     pricing.NewBasicMaker(ta.PosUnitUSD, ta.PosLimit, ta.OrderMinBpsDiff, ta.OrderMinTickDiff),
			maxUSDPos: ta.PosUnitUSD * ta.PosLimit,
		}

		if err := s.RegisterAsset(ctx, asset, ta.Trading); err != nil {
			return fmt.Errorf("new_coin_maker: on_init: %w", err)
		}
	}
	return nil
}

// OnTrade feeds each trade print into the asset's model, then persists the
// model's four {value,last_ts} pairs through the batched persistence
// reporter (spec.md §4.12).
func (b *NewCoinMakerBehavior) OnTrade(ctx context.Context, s *Strategy, asset types.Asset, trades []types.TradeEvent) error {
	na, ok := b.assets[asset]
	if !ok {
		return nil
	}
	for _, tr := range trades {
		na.model.Update(tr.Price, tr.Volume, float64(tr.TsMs))
	}

	if persistReporter := b.persistReporter(s); persistReporter != nil {
		nowMs := time.Now().UnixMilli()
		warm := na.model.WarmState()
		b.persist(ctx, persistReporter, asset, na.tauP, "value", warm.Value, warm.ValueLastTs, nowMs)
		b.persist(ctx, persistReporter, asset, na.tauP, "volume", warm.Volume, warm.VolumeLastTs, nowMs)
		b.persist(ctx, persistReporter, asset, na.tauO, "value_diff", warm.ValueDiff, warm.ValueDiffLastTs, nowMs)
		b.persist(ctx, persistReporter, asset, na.tauO, "volume_diff", warm.VolumeDiff, warm.VolumeDiffLastTs, nowMs)
	}
	return nil
}

func (b *NewCoinMakerBehavior) persistReporter(s *Strategy) *persistence.Reporter {
	return s.cfg.PersistReporter
}

func (b *NewCoinMakerBehavior) persist(ctx context.Context, reporter *persistence.Reporter, asset types.Asset, tau float64, component string, value, lastTs *float64, nowMs int64) {
	if value == nil || lastTs == nil {
		return
	}
	base := fmt.Sprintf("%s_%s_%s", asset.String(), formatTau(tau), component)
	if err := reporter.Record(ctx, persistence.BucketNewCoinMaker, base+"_value", *value, nowMs); err != nil {
		return
	}
	_ = reporter.Record(ctx, persistence.BucketNewCoinMaker, base+"_last_ts", *lastTs, nowMs)
}

func formatTau(tau float64) string {
	return fmt.Sprintf("%g", tau)
}

// OnTick reports the book mid_price every tick and the model's sigma once
// ready, then, once the model is ready to quote, submits maker intents
// through the order manager (spec.md §4.12).
func (b *NewCoinMakerBehavior) OnTick(ctx context.Context, s *Strategy, asset types.Asset) error {
	na, ok := b.assets[asset]
	if !ok {
		return nil
	}
	ticker, ok := s.Ticker(asset)
	if !ok {
		return nil
	}
	nowMs := time.Now().UnixMilli()

	// mid_price reports the book mid every tick, matching new_coin_maker's
	// on_tick; only sigma (derived from the model) is gated on readiness.
	fields := map[string]float64{"mid_price": ticker.Mid()}
	if sigma, sigmaReady := na.model.Sigma(); sigmaReady {
		fields["sigma"] = sigma
	}
	s.BatchReport(ctx, b.reportMeasurement, asset.String(), fields, nowMs)

	theoBid, theoAsk, ready := na.model.QuotePrice()
	if !ready {
		return nil
	}

	rule, ok := s.TradeRule(asset)
	if !ok {
		s.logger.Warn("new_coin_maker: trade rule not found", "asset", asset)
		return nil
	}

	intents := na.maker.GetMakerCtx(pricing.BasicMakerContext{
		TheoBid: theoBid,
		TheoAsk: theoAsk,
		Ticker:  ticker,
		NowMs:   nowMs,
	}, rule)

	for _, intent := range intents {
		if err := s.DoMaker(ctx, intent); err != nil {
			s.logger.Warn("new_coin_maker: do_maker", "asset", asset, "error", err)
		}
	}
	return nil
}

// AssetMaxPosUSD returns the configured position cap for asset.
func (b *NewCoinMakerBehavior) AssetMaxPosUSD(asset types.Asset) (float64, error) {
	na, ok := b.assets[asset]
	if !ok {
		return 0, fmt.Errorf("new_coin_maker: no asset configured for %s", asset)
	}
	return na.maxUSDPos, nil
}

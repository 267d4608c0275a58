package strategy

import (
	"context"
	"testing"

	"leadlag/internal/calc"
	"leadlag/internal/config"
	"leadlag/internal/exchange"
	"leadlag/pkg/types"
)

func leadAsset() types.Asset {
	return types.Asset{Exchange: "FAKE", Type: types.AssetSwap, Base: "BTC", Quote: "USDT"}
}

func lagAsset() types.Asset {
	return types.Asset{Exchange: "FAKE", Type: types.AssetSwap, Base: "BTCLAG", Quote: "USDT"}
}

func newOffsetTakerTestStrategy(t *testing.T, client *fakeTradingClient) (*Strategy, *fakeMarketBus) {
	t.Helper()
	bus := newFakeMarketBus()
	lead, lag := leadAsset(), lagAsset()

	s, err := New(Config{
		Trading:         true,
		QuoteIntvalMs:   0,
		SpreadEMAParams: mustEMAParams(t, "1M", 100),
		DelayEMAParams:  mustEMAParams(t, "1M", 100),
		MarketAssets:    []types.Asset{lead, lag},
		MarketBus:       bus,
		Clients:         map[types.ExchangeID]exchange.TradingClient{lead.Exchange: client},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, bus
}

func offsetTakerConfig() config.OffsetTakerConfig {
	return config.OffsetTakerConfig{
		OffsetConfigs: []config.EMAConfig{
			{Period: "5M", Intval: 100},
		},
		LeadMaxDelay:      1000,
		LagMaxDelay:       1000,
		LeadMaxExpiration: 60_000,
		ReportMeasurement: "offset_taker",
		TradeAssets: []config.OffsetTakerAsset{
			{
				Asset:           lagAsset().String(),
				LeadAsset:       leadAsset().String(),
				Trading:         true,
				PosLimit:        1,
				PosUnitUSD:      1000,
				UseOffsetPeriod: "5M",
				TakerThreshold:  0.001,
			},
		},
	}
}

func TestOffsetTakerOnInitRegistersAssetsAndOffsetCache(t *testing.T) {
	t.Parallel()
	client := newFakeTradingClient()
	s, _ := newOffsetTakerTestStrategy(t, client)
	behavior := NewOffsetTakerBehavior(offsetTakerConfig(), 0.0005)

	if err := behavior.OnInit(context.Background(), s); err != nil {
		t.Fatalf("OnInit: %v", err)
	}

	if !behavior.offsetCache.Initialized() {
		t.Error("expected offset cache to be initialized")
	}
	if _, ok := s.omsMap[lagAsset()]; !ok {
		t.Error("expected an order manager registered for the lag asset")
	}
	maxPos, err := behavior.AssetMaxPosUSD(lagAsset())
	if err != nil {
		t.Fatalf("AssetMaxPosUSD: %v", err)
	}
	if maxPos != 1000 {
		t.Errorf("AssetMaxPosUSD = %v, want 1000", maxPos)
	}
}

func TestOffsetTakerOnTickUnknownAssetIsNoop(t *testing.T) {
	t.Parallel()
	client := newFakeTradingClient()
	s, _ := newOffsetTakerTestStrategy(t, client)
	behavior := NewOffsetTakerBehavior(offsetTakerConfig(), 0.0005)
	if err := behavior.OnInit(context.Background(), s); err != nil {
		t.Fatalf("OnInit: %v", err)
	}

	other := types.Asset{Exchange: "FAKE", Type: types.AssetSwap, Base: "SOL", Quote: "USDT"}
	if err := behavior.OnTick(context.Background(), s, other); err != nil {
		t.Errorf("OnTick for unrelated asset should be a no-op, got error: %v", err)
	}
}

func TestOffsetTakerOnLeadTickRunsTakerPipeline(t *testing.T) {
	t.Parallel()
	client := newFakeTradingClient()
	s, _ := newOffsetTakerTestStrategy(t, client)
	behavior := NewOffsetTakerBehavior(offsetTakerConfig(), 0.0005)
	ctx := context.Background()
	if err := behavior.OnInit(ctx, s); err != nil {
		t.Fatalf("OnInit: %v", err)
	}

	lead, lag := leadAsset(), lagAsset()
	leadTicker := types.Ticker{Asset: lead, TransactionMs: 1000, ReceiveMs: 1010, AskPrice1: 101, BidPrice1: 100}
	lagTicker := types.Ticker{Asset: lag, TransactionMs: 1000, ReceiveMs: 1010, AskPrice1: 101, BidPrice1: 100}
	s.tickerMap[lead] = leadTicker
	s.tickerMap[lag] = lagTicker
	s.delayMap[lead] = calc.NewDelayEMA(mustEMAParams(t, "1M", 100), nil)
	s.delayMap[lead].Update(10, 1000)

	if err := behavior.offsetCache.Update(leadTicker, lagTicker, 2000); err != nil {
		t.Fatalf("offset cache update: %v", err)
	}

	// Order manager must report a known position before DoTaker will submit.
	if err := s.syncOrderPosition(ctx, lag, lagTicker); err != nil {
		t.Fatalf("syncOrderPosition: %v", err)
	}

	if err := behavior.OnTick(ctx, s, lead); err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	// Not asserting a submitted order here: with identical lead and lag
	// books the theoretical prices give no edge past the taker threshold,
	// so no order is expected. This test proves the lead-tick pipeline runs
	// end to end without error (delay check, offset lookup, theo price,
	// taker ctx, do_taker).
}

func TestOffsetTakerDelayCheckRejectsStaleLead(t *testing.T) {
	t.Parallel()
	client := newFakeTradingClient()
	s, _ := newOffsetTakerTestStrategy(t, client)
	behavior := NewOffsetTakerBehavior(offsetTakerConfig(), 0.0005)

	lead := leadAsset()
	s.delayMap[lead] = calc.NewDelayEMA(mustEMAParams(t, "1M", 100), nil)
	s.delayMap[lead].Update(10, 1000)

	// Lead's raw delay (ReceiveMs - TransactionMs) exceeds LeadMaxDelay (1000ms).
	staleLead := types.Ticker{Asset: lead, TransactionMs: 1000, ReceiveMs: 5000}
	if behavior.delayCheck(s, staleLead) {
		t.Error("expected delayCheck to reject a lead ticker past LeadMaxDelay")
	}
}

func TestOffsetTakerOnTradeIsNoop(t *testing.T) {
	t.Parallel()
	client := newFakeTradingClient()
	s, _ := newOffsetTakerTestStrategy(t, client)
	behavior := NewOffsetTakerBehavior(offsetTakerConfig(), 0.0005)

	if err := behavior.OnTrade(context.Background(), s, lagAsset(), []types.TradeEvent{{Asset: lagAsset(), Price: 100, Volume: 1}}); err != nil {
		t.Errorf("OnTrade should always no-op, got error: %v", err)
	}
}

func mustEMAParams(t *testing.T, period string, intval int64) calc.EMAParams {
	t.Helper()
	params, err := calc.NewEMAParams(period, intval)
	if err != nil {
		t.Fatalf("NewEMAParams(%q, %d): %v", period, intval, err)
	}
	return params
}

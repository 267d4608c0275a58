package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadlag/internal/calc"
	"leadlag/internal/exchange"
	"leadlag/internal/pricing"
	"leadlag/pkg/types"
)

// fakeMarketBus is a directly-fed exchange.MarketBus: tests push events
// onto its channels instead of running a real connection.
type fakeMarketBus struct {
	depthCh chan types.DepthSnapshot
	tradeCh chan types.TradeEvent
}

func newFakeMarketBus() *fakeMarketBus {
	return &fakeMarketBus{
		depthCh: make(chan types.DepthSnapshot, 16),
		tradeCh: make(chan types.TradeEvent, 16),
	}
}

func (b *fakeMarketBus) DepthEvents() <-chan types.DepthSnapshot { return b.depthCh }
func (b *fakeMarketBus) TradeEvents() <-chan types.TradeEvent    { return b.tradeCh }
func (b *fakeMarketBus) Run(ctx context.Context) error           { <-ctx.Done(); return nil }
func (b *fakeMarketBus) Subscribe(ctx context.Context, assets []types.Asset) error {
	return nil
}
func (b *fakeMarketBus) Close() error { return nil }

// fakeTradingClient is a minimal exchange.TradingClient test double.
type fakeTradingClient struct {
	mu       sync.Mutex
	rule     pricing.TradeRule
	position types.PositionSnapshot
	safe     bool
	submits  []types.OrderRequest
}

func newFakeTradingClient() *fakeTradingClient {
	return &fakeTradingClient{
		rule:     pricing.TradeRule{Tick: 0.1, Lot: 0.01},
		position: types.PositionSnapshot{PositionKnown: true},
		safe:     true,
	}
}

func (c *fakeTradingClient) Submit(ctx context.Context, req types.OrderRequest) (types.OrderAck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits = append(c.submits, req)
	return types.OrderAck{OrderID: "fake-1", Success: true}, nil
}

func (c *fakeTradingClient) Cancel(ctx context.Context, orderIDs []string) error { return nil }
func (c *fakeTradingClient) SafeToPost() bool                                     { return c.safe }

func (c *fakeTradingClient) Position(ctx context.Context, asset types.Asset) (types.PositionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, nil
}

func (c *fakeTradingClient) TradeRule(ctx context.Context, asset types.Asset) (pricing.TradeRule, error) {
	return c.rule, nil
}

func testAsset() types.Asset {
	return types.Asset{Exchange: "FAKE", Type: types.AssetSwap, Base: "ETH", Quote: "USDT"}
}

func newTestStrategy(t *testing.T, bus *fakeMarketBus, client *fakeTradingClient) *Strategy {
	t.Helper()
	spreadParams, err := calc.NewEMAParams("1M", 100)
	if err != nil {
		t.Fatalf("NewEMAParams(spread): %v", err)
	}
	delayParams, err := calc.NewEMAParams("1M", 100)
	if err != nil {
		t.Fatalf("NewEMAParams(delay): %v", err)
	}

	asset := testAsset()
	s, err := New(Config{
		Trading:         true,
		QuoteIntvalMs:   0,
		SpreadEMAParams: spreadParams,
		DelayEMAParams:  delayParams,
		MarketAssets:    []types.Asset{asset},
		MarketBus:       bus,
		Clients:         map[types.ExchangeID]exchange.TradingClient{asset.Exchange: client},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// recordingBehavior counts OnTick/OnTrade calls and records the last
// ticker it observed, used to assert the dispatch pipeline ran.
type recordingBehavior struct {
	mu        sync.Mutex
	initCalls int
	tickCalls int
	tradeCalls int
	lastTicker types.Ticker
}

func (b *recordingBehavior) OnInit(ctx context.Context, s *Strategy) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls++
	return s.RegisterAsset(ctx, testAsset(), true)
}

func (b *recordingBehavior) OnTick(ctx context.Context, s *Strategy, asset types.Asset) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickCalls++
	ticker, _ := s.Ticker(asset)
	b.lastTicker = ticker
	return nil
}

func (b *recordingBehavior) OnTrade(ctx context.Context, s *Strategy, asset types.Asset, trades []types.TradeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tradeCalls++
	return nil
}

func (b *recordingBehavior) AssetMaxPosUSD(asset types.Asset) (float64, error) {
	return 1000, nil
}

func (b *recordingBehavior) snapshot() (init, tick, trade int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCalls, b.tickCalls, b.tradeCalls
}

func TestRunDispatchesDepthToOnTick(t *testing.T) {
	t.Parallel()
	bus := newFakeMarketBus()
	client := newFakeTradingClient()
	s := newTestStrategy(t, bus, client)
	behavior := &recordingBehavior{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, behavior) }()

	asset := testAsset()
	bus.depthCh <- types.DepthSnapshot{
		Asset: asset, TransactionMs: 1, ReceiveMs: 1,
		AskPrice1: 101, BidPrice1: 100, HasAsk: true, HasBid: true,
	}

	waitFor(t, func() bool { _, tick, _ := behavior.snapshot(); return tick == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if init, tick, _ := behavior.snapshot(); init != 1 || tick != 1 {
		t.Errorf("init=%d tick=%d, want init=1 tick=1", init, tick)
	}
	if behavior.lastTicker.AskPrice1 != 101 || behavior.lastTicker.BidPrice1 != 100 {
		t.Errorf("lastTicker = %+v, want ask=101 bid=100", behavior.lastTicker)
	}
}

func TestRunSkipsStaleTransactionMs(t *testing.T) {
	t.Parallel()
	bus := newFakeMarketBus()
	client := newFakeTradingClient()
	s := newTestStrategy(t, bus, client)
	behavior := &recordingBehavior{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, behavior) }()

	asset := testAsset()
	bus.depthCh <- types.DepthSnapshot{
		Asset: asset, TransactionMs: 5, ReceiveMs: 5,
		AskPrice1: 101, BidPrice1: 100, HasAsk: true, HasBid: true,
	}
	waitFor(t, func() bool { _, tick, _ := behavior.snapshot(); return tick == 1 })

	// Same transaction_ms as before: must NOT advance the ticker cache
	// or trigger another on_tick (spec.md §4.10 step 5).
	bus.depthCh <- types.DepthSnapshot{
		Asset: asset, TransactionMs: 5, ReceiveMs: 10,
		AskPrice1: 200, BidPrice1: 199, HasAsk: true, HasBid: true,
	}
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-done

	if _, tick, _ := behavior.snapshot(); tick != 1 {
		t.Errorf("tick calls = %d, want 1 (stale transaction_ms must not re-admit)", tick)
	}
}

func TestRunRunsTickPipelineOnPureTradeWithCachedDepth(t *testing.T) {
	t.Parallel()
	bus := newFakeMarketBus()
	client := newFakeTradingClient()
	s := newTestStrategy(t, bus, client)
	behavior := &recordingBehavior{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, behavior) }()

	asset := testAsset()
	bus.depthCh <- types.DepthSnapshot{
		Asset: asset, TransactionMs: 1, ReceiveMs: 1,
		AskPrice1: 101, BidPrice1: 100, HasAsk: true, HasBid: true,
	}
	waitFor(t, func() bool { _, tick, _ := behavior.snapshot(); return tick == 1 })

	// A trade print with no new depth must run on_trade, but the ticker
	// cache gate naturally no-ops since transaction_ms hasn't advanced
	// (spec.md §4.10: every update goes through the same pipeline).
	bus.tradeCh <- types.TradeEvent{Asset: asset, ID: 1, Price: 100.5, Volume: 1, TsMs: 2}
	waitFor(t, func() bool { _, _, trade := behavior.snapshot(); return trade == 1 })
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-done

	init, tick, trade := behavior.snapshot()
	if init != 1 || tick != 1 || trade != 1 {
		t.Errorf("init=%d tick=%d trade=%d, want init=1 tick=1 trade=1", init, tick, trade)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within timeout")
}

package persistence

import (
	"context"
	"testing"

	"leadlag/pkg/types"
)

func testAsset() types.Asset {
	return types.Asset{Exchange: "OKX", Type: types.AssetSwap, Base: "BTC", Quote: "USDT"}
}

func TestWarmStoreOffsetStateRequiresAllFourComponents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer store.Close()

	ws := NewWarmStore(context.Background(), store)
	asset := testAsset()

	_, found, err := ws.OffsetState(asset, "1M")
	if err != nil {
		t.Fatalf("OffsetState: %v", err)
	}
	if found {
		t.Fatal("expected not found with no components written")
	}

	base := asset.String()
	ctx := context.Background()
	_ = store.SetMany(ctx, BucketOffset, map[string]string{
		base + "_1M_bid2bid": "0.01",
		base + "_1M_bid2ask": "0.02",
		base + "_1M_ask2bid": "0.03",
		// ask2ask intentionally omitted
	})
	_, found, err = ws.OffsetState(asset, "1M")
	if err != nil {
		t.Fatalf("OffsetState: %v", err)
	}
	if found {
		t.Error("expected not found with a missing component (all-or-nothing)")
	}

	_ = store.SetMany(ctx, BucketOffset, map[string]string{base + "_1M_ask2ask": "0.04"})
	state, found, err := ws.OffsetState(asset, "1M")
	if err != nil {
		t.Fatalf("OffsetState: %v", err)
	}
	if !found {
		t.Fatal("expected found once all four components are present")
	}
	if state.B2B != 0.01 || state.B2A != 0.02 || state.A2B != 0.03 || state.A2A != 0.04 {
		t.Errorf("state = %+v, want {0.01 0.02 0.03 0.04}", state)
	}
}

func TestWarmStoreSpreadAndDelayState(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer store.Close()

	ws := NewWarmStore(context.Background(), store)
	asset := testAsset()
	ctx := context.Background()

	_ = store.SetMany(ctx, BucketSpread, map[string]string{asset.String() + "_1M": "5.5"})
	spread, found, err := ws.SpreadState(asset, "1M")
	if err != nil || !found || spread != 5.5 {
		t.Errorf("SpreadState = %v, %v, %v; want 5.5, true, nil", spread, found, err)
	}

	_, found, err = ws.DelayState(asset, "1M")
	if err != nil {
		t.Fatalf("DelayState: %v", err)
	}
	if found {
		t.Error("expected delay state not found with nothing written")
	}
}

func TestWarmStoreNewCoinMakerStateIsPerComponentOptional(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer store.Close()

	ws := NewWarmStore(context.Background(), store)
	asset := testAsset()
	ctx := context.Background()
	tauP, tauO := 5000.0, 2000.0

	state, err := ws.NewCoinMakerState(asset, tauP, tauO)
	if err != nil {
		t.Fatalf("NewCoinMakerState: %v", err)
	}
	if state.Value != nil || state.Volume != nil || state.ValueDiff != nil || state.VolumeDiff != nil {
		t.Errorf("expected every component nil with nothing written, got %+v", state)
	}

	base := asset.String() + "_" + formatTau(tauP)
	_ = store.SetMany(ctx, BucketNewCoinMaker, map[string]string{
		base + "_value_value":    "123.4",
		base + "_value_last_ts":  "1000",
		base + "_volume_value":   "9.5",
		base + "_volume_last_ts": "1000",
	})

	state, err = ws.NewCoinMakerState(asset, tauP, tauO)
	if err != nil {
		t.Fatalf("NewCoinMakerState: %v", err)
	}
	if state.Value == nil || *state.Value != 123.4 {
		t.Errorf("Value = %v, want 123.4", state.Value)
	}
	if state.ValueLastTs == nil || *state.ValueLastTs != 1000 {
		t.Errorf("ValueLastTs = %v, want 1000", state.ValueLastTs)
	}
	if state.Volume == nil || *state.Volume != 9.5 {
		t.Errorf("Volume = %v, want 9.5", state.Volume)
	}
	// The diff pair is keyed by tauO and was never written: still nil.
	if state.ValueDiff != nil || state.VolumeDiff != nil {
		t.Errorf("expected the tauO-keyed diff pair to remain nil, got ValueDiff=%v VolumeDiff=%v", state.ValueDiff, state.VolumeDiff)
	}
}

package persistence

import (
	"context"
	"fmt"
	"strconv"

	"leadlag/internal/calc"
	"leadlag/internal/pricing"
	"leadlag/pkg/types"
)

// Offset component flags, matching the "bid2bid"/"bid2ask"/"ask2bid"/
// "ask2ask" keys read_redis_offset iterates over in
// original_source/src/utils/redis_util.rs (B2B/B2A/A2B/A2A in calc.OffsetEMA).
const (
	flagB2B = "bid2bid"
	flagB2A = "bid2ask"
	flagA2B = "ask2bid"
	flagA2A = "ask2ask"
)

// WarmStore adapts a KVStore to offsetcache.WarmStore (and the analogous
// spread/delay warm-start lookups), using the "{asset}_{period}_{flag}" /
// "{asset}_{period}" key shapes from original_source/src/utils/redis_util.rs
// (read_offset_by_key, read_redis_spread, read_redis_delay).
type WarmStore struct {
	store KVStore
	ctx   context.Context
}

// NewWarmStore binds a KVStore and the context used for its warm-start
// reads (construction-time only, never on the hot path).
func NewWarmStore(ctx context.Context, store KVStore) *WarmStore {
	return &WarmStore{store: store, ctx: ctx}
}

func assetKey(asset types.Asset) string {
	return asset.String()
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// OffsetState implements offsetcache.WarmStore: reads all four offset
// components for (lag, period) from BucketOffset, reporting not-found if
// any component is missing (matching read_redis_offset's all-or-nothing
// behavior).
func (w *WarmStore) OffsetState(lag types.Asset, period string) (calc.OffsetEMAState, bool, error) {
	var state calc.OffsetEMAState
	fields := []struct {
		flag string
		dst  *float64
	}{
		{flagB2B, &state.B2B},
		{flagB2A, &state.B2A},
		{flagA2B, &state.A2B},
		{flagA2A, &state.A2A},
	}
	base := assetKey(lag)
	for _, f := range fields {
		key := fmt.Sprintf("%s_%s_%s", base, period, f.flag)
		raw, found, err := w.store.Get(w.ctx, BucketOffset, key)
		if err != nil {
			return calc.OffsetEMAState{}, false, fmt.Errorf("persistence: warm-start offset %s: %w", key, err)
		}
		if !found {
			return calc.OffsetEMAState{}, false, nil
		}
		val, err := parseFloat(raw)
		if err != nil {
			return calc.OffsetEMAState{}, false, fmt.Errorf("persistence: parse offset %s: %w", key, err)
		}
		*f.dst = val
	}
	return state, true, nil
}

// SpreadState reads the warm-started spread value for (asset, period) from
// BucketSpread.
func (w *WarmStore) SpreadState(asset types.Asset, period string) (float64, bool, error) {
	key := fmt.Sprintf("%s_%s", assetKey(asset), period)
	raw, found, err := w.store.Get(w.ctx, BucketSpread, key)
	if err != nil || !found {
		return 0, false, err
	}
	val, err := parseFloat(raw)
	return val, err == nil, err
}

// DelayState reads the warm-started delay value for (asset, period) from
// BucketDelay.
func (w *WarmStore) DelayState(asset types.Asset, period string) (float64, bool, error) {
	key := fmt.Sprintf("%s_%s", assetKey(asset), period)
	raw, found, err := w.store.Get(w.ctx, BucketDelay, key)
	if err != nil || !found {
		return 0, false, err
	}
	val, err := parseFloat(raw)
	return val, err == nil, err
}

// NewCoinMakerState reads the warm-started {value,last_ts} pair for each of
// the four TEMAs a NewCoinMakerModel maintains, keyed
// "{asset}_{tau}_{component}_{value|last_ts}" (spec.md §6): value/volume
// are keyed by tauP, value_diff/volume_diff by tauO, matching the two time
// constants pricing.NewNewCoinMakerModel takes. Each pair is independently
// optional — a component with no persisted entry starts cold.
func (w *WarmStore) NewCoinMakerState(asset types.Asset, tauP, tauO float64) (pricing.NewCoinMakerWarmState, error) {
	var state pricing.NewCoinMakerWarmState
	var err error

	if state.Value, state.ValueLastTs, err = w.readTEMAPair(asset, tauP, "value"); err != nil {
		return pricing.NewCoinMakerWarmState{}, err
	}
	if state.Volume, state.VolumeLastTs, err = w.readTEMAPair(asset, tauP, "volume"); err != nil {
		return pricing.NewCoinMakerWarmState{}, err
	}
	if state.ValueDiff, state.ValueDiffLastTs, err = w.readTEMAPair(asset, tauO, "value_diff"); err != nil {
		return pricing.NewCoinMakerWarmState{}, err
	}
	if state.VolumeDiff, state.VolumeDiffLastTs, err = w.readTEMAPair(asset, tauO, "volume_diff"); err != nil {
		return pricing.NewCoinMakerWarmState{}, err
	}
	return state, nil
}

func (w *WarmStore) readTEMAPair(asset types.Asset, tau float64, component string) (*float64, *float64, error) {
	base := fmt.Sprintf("%s_%s_%s", assetKey(asset), formatTau(tau), component)
	value, err := w.readOptionalFloat(base, "value")
	if err != nil {
		return nil, nil, err
	}
	lastTs, err := w.readOptionalFloat(base, "last_ts")
	if err != nil {
		return nil, nil, err
	}
	return value, lastTs, nil
}

func (w *WarmStore) readOptionalFloat(base, suffix string) (*float64, error) {
	key := base + "_" + suffix
	raw, found, err := w.store.Get(w.ctx, BucketNewCoinMaker, key)
	if err != nil {
		return nil, fmt.Errorf("persistence: warm-start new_coin_maker %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	val, err := parseFloat(raw)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse new_coin_maker %s: %w", key, err)
	}
	return &val, nil
}

func formatTau(tau float64) string {
	return strconv.FormatFloat(tau, 'g', -1, 64)
}

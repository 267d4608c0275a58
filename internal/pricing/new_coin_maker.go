package pricing

import (
	"math"

	"leadlag/internal/calc"
)

// NewCoinMakerModel maintains the four TEMAs (value, volume, value-diff,
// volume-diff) that drive the new-coin maker's volume-weighted price and
// trade-dispersion sigma (spec.md §4.8, grounded on
// original_source/src/new_coin_maker/new_coin_maker_model.rs). Unlike the
// Rust original's get_tema_price/get_tema_sigma, which panic when the
// model is not ready, these accessors return (0, false) — the hot path
// never panics (spec.md §7); callers must check IsReady first regardless.
type NewCoinMakerModel struct {
	value      *calc.TEMA
	volume     *calc.TEMA
	valueDiff  *calc.TEMA
	volumeDiff *calc.TEMA

	SigmaMulti    float64
	SigmaMinBps   float64
}

// NewCoinMakerWarmState is the persisted {value,last_ts} quad read back for
// each of the four TEMAs during warm-start.
type NewCoinMakerWarmState struct {
	Value, ValueLastTs           *float64
	Volume, VolumeLastTs         *float64
	ValueDiff, ValueDiffLastTs   *float64
	VolumeDiff, VolumeDiffLastTs *float64
}

// NewNewCoinMakerModel constructs the model with two time constants: tauP
// for value/volume, tauO for dispersion (spec.md §4.8).
func NewNewCoinMakerModel(tauP, tauO, sigmaMulti, sigmaMinBps float64, warm *NewCoinMakerWarmState) *NewCoinMakerModel {
	m := &NewCoinMakerModel{SigmaMulti: sigmaMulti, SigmaMinBps: sigmaMinBps}
	if warm != nil {
		m.value = calc.NewTEMA(tauP, warm.Value, warm.ValueLastTs)
		m.volume = calc.NewTEMA(tauP, warm.Volume, warm.VolumeLastTs)
		m.valueDiff = calc.NewTEMA(tauO, warm.ValueDiff, warm.ValueDiffLastTs)
		m.volumeDiff = calc.NewTEMA(tauO, warm.VolumeDiff, warm.VolumeDiffLastTs)
	} else {
		m.value = calc.NewTEMA(tauP, nil, nil)
		m.volume = calc.NewTEMA(tauP, nil, nil)
		m.valueDiff = calc.NewTEMA(tauO, nil, nil)
		m.volumeDiff = calc.NewTEMA(tauO, nil, nil)
	}
	return m
}

// Update feeds one trade (price, absolute volume, ts ms) into the model.
func (m *NewCoinMakerModel) Update(price, volume, tsMs float64) {
	m.value.Update(price*volume, tsMs)
	m.volume.Update(volume, tsMs)

	// volume-weighted price so far, using the just-updated value/volume
	p := m.value.Val / m.volume.Val
	diff := p * math.Log(price/p)

	m.valueDiff.Update(math.Abs(diff)*volume, tsMs)
	m.volumeDiff.Update(volume, tsMs)
}

// IsReady requires all four TEMAs to have seen at least one observation
// (spec.md §4.8).
func (m *NewCoinMakerModel) IsReady() bool {
	return m.value.IsReady() && m.volume.IsReady() && m.valueDiff.IsReady() && m.volumeDiff.IsReady()
}

// Price returns the volume-weighted price P = value.val/volume.val.
func (m *NewCoinMakerModel) Price() (float64, bool) {
	if !m.IsReady() {
		return 0, false
	}
	return m.value.Val / m.volume.Val, true
}

// Sigma returns the trade-dispersion sigma = value_diff.val/volume_diff.val.
func (m *NewCoinMakerModel) Sigma() (float64, bool) {
	if !m.IsReady() {
		return 0, false
	}
	return m.valueDiff.Val / m.volumeDiff.Val, true
}

// QuotePrice returns (theoBid, theoAsk) using a sigma floored at a
// basis-points fraction of price (spec.md §4.8, scenario F):
//
//	sigma' = max(sigma*SigmaMulti, P*SigmaMinBps*1e-4)
//	theoBid = P - sigma', theoAsk = P + sigma'
func (m *NewCoinMakerModel) QuotePrice() (theoBid, theoAsk float64, ok bool) {
	p, ready := m.Price()
	if !ready {
		return 0, 0, false
	}
	sigma, _ := m.Sigma()
	sigmaPrime := math.Max(sigma*m.SigmaMulti, p*m.SigmaMinBps*1e-4)
	return p - sigmaPrime, p + sigmaPrime, true
}

// WarmState snapshots the four TEMAs' {value, last_ts} for persistence
// (spec.md §4.12 "persist the four TEMAs' {value, last_ts} back to the
// store").
func (m *NewCoinMakerModel) WarmState() NewCoinMakerWarmState {
	return NewCoinMakerWarmState{
		Value: ptr(m.value.Val), ValueLastTs: ptr(m.value.LastTs),
		Volume: ptr(m.volume.Val), VolumeLastTs: ptr(m.volume.LastTs),
		ValueDiff: ptr(m.valueDiff.Val), ValueDiffLastTs: ptr(m.valueDiff.LastTs),
		VolumeDiff: ptr(m.volumeDiff.Val), VolumeDiffLastTs: ptr(m.volumeDiff.LastTs),
	}
}

func ptr(v float64) *float64 { return &v }

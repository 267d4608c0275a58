package calc

import "leadlag/pkg/types"

// OffsetEMA tracks four parallel smoothed top-of-book ratios between a lead
// and lag asset (spec.md §3):
//
//	b2b = lag.bid/lead.bid - 1
//	b2a = lag.bid/lead.ask - 1
//	a2b = lag.ask/lead.bid - 1
//	a2a = lag.ask/lead.ask - 1
//
// All four share one update gate and one Init flag, matching
// original_source/lead_lag_hft/src/calculator/offset_ema.rs.
type OffsetEMA struct {
	Params       EMAParams
	LastUpdateMs int64
	Init         bool
	B2B, B2A, A2B, A2A float64
}

// NewOffsetEMA constructs an estimator for the given period/interval. If
// warmState is non-nil, the estimator is seeded from it with Init=true;
// otherwise it starts at zero with Init=false (spec.md §4.2).
func NewOffsetEMA(params EMAParams, warmState *OffsetEMAState) *OffsetEMA {
	e := &OffsetEMA{Params: params}
	if warmState != nil {
		e.B2B, e.B2A, e.A2B, e.A2A = warmState.B2B, warmState.B2A, warmState.A2B, warmState.A2A
		e.Init = true
	}
	return e
}

// OffsetEMAState is the persisted shape read back during warm-start.
type OffsetEMAState struct {
	B2B, B2A, A2B, A2A float64
}

// Update applies one (lead, lag) observation at ts, guarded by
// last_update_ms + intval <= ts (spec.md §4.2). Returns false if the guard
// rejected the sample (no-op, values unchanged).
func (e *OffsetEMA) Update(lead, lag types.Ticker, tsMs int64) bool {
	if !(e.LastUpdateMs+e.Params.Intval <= tsMs) {
		return false
	}

	b2b := lag.BidPrice1/lead.BidPrice1 - 1
	b2a := lag.BidPrice1/lead.AskPrice1 - 1
	a2b := lag.AskPrice1/lead.BidPrice1 - 1
	a2a := lag.AskPrice1/lead.AskPrice1 - 1

	if e.LastUpdateMs == 0 && !e.Init {
		// First committed sample: no smoothing.
		e.B2B, e.B2A, e.A2B, e.A2A = b2b, b2a, a2b, a2a
	} else {
		e.B2B = e.B2B*e.Params.Decay + e.Params.Alpha*b2b
		e.B2A = e.B2A*e.Params.Decay + e.Params.Alpha*b2a
		e.A2B = e.A2B*e.Params.Decay + e.Params.Alpha*a2b
		e.A2A = e.A2A*e.Params.Decay + e.Params.Alpha*a2a
	}

	e.LastUpdateMs = tsMs
	e.Init = true
	return true
}

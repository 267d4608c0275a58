package calc

import "math"

// TEMA is the continuous-time exponential moving average used by the
// new-coin maker model (spec.md §3, §4.3): no interval gate, every
// observation updates, and the first observation seeds the value directly.
//
//	update(new_val, ts):
//	  if unseeded:  val = new_val
//	  else:         val = val*exp(-(ts-last_ts)/tau) + new_val/tau
//	  last_ts = ts
//
// Readiness is last_ts > 0.
type TEMA struct {
	Tau     float64 // time constant, ms
	LastTs  float64
	Val     float64
}

// NewTEMA constructs a TEMA with the given time constant, optionally
// warm-started from a persisted {value, last_ts} pair.
func NewTEMA(tau float64, warmValue, warmLastTs *float64) *TEMA {
	t := &TEMA{Tau: tau}
	if warmValue != nil && warmLastTs != nil {
		t.Val = *warmValue
		t.LastTs = *warmLastTs
	}
	return t
}

// Update feeds one observation at time ts (ms, monotonically increasing).
func (t *TEMA) Update(newVal, ts float64) {
	if t.LastTs <= 0 {
		t.Val = newVal
	} else {
		t.Val = t.Val*math.Exp(-(ts-t.LastTs)/t.Tau) + newVal/t.Tau
	}
	t.LastTs = ts
}

// IsReady reports whether the TEMA has seen at least one observation.
func (t *TEMA) IsReady() bool {
	return t.LastTs > 0
}

package calc

// SpreadEMA smooths a single ticker's spread (ask - bid) over time.
// Same first-sample/guard rules as OffsetEMA (spec.md §3, §4.2).
type SpreadEMA struct {
	Params       EMAParams
	LastUpdateMs int64
	Init         bool
	Value        float64
}

// NewSpreadEMA constructs a SpreadEMA, optionally warm-started.
func NewSpreadEMA(params EMAParams, warmValue *float64) *SpreadEMA {
	e := &SpreadEMA{Params: params}
	if warmValue != nil {
		e.Value = *warmValue
		e.Init = true
	}
	return e
}

// Update applies one spread observation at ts. Returns false if the guard
// rejected the sample.
func (e *SpreadEMA) Update(spread float64, tsMs int64) bool {
	if !(e.LastUpdateMs+e.Params.Intval <= tsMs) {
		return false
	}
	if e.LastUpdateMs == 0 && !e.Init {
		e.Value = spread
	} else {
		e.Value = e.Value*e.Params.Decay + e.Params.Alpha*spread
	}
	e.LastUpdateMs = tsMs
	e.Init = true
	return true
}

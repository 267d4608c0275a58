package pricing

import "github.com/shopspring/decimal"

// TradeRule carries the venue's minimal price (tick) and size (lot)
// increments for one asset.
type TradeRule struct {
	Tick float64 `json:"tick"`
	Lot  float64 `json:"lot"`
}

// RoundDownTick floors price to the nearest multiple of tick using
// decimal arithmetic, avoiding the binary-float truncation error a raw
// math.Floor(price/tick)*tick is prone to at typical crypto tick sizes
// (spec.md §4.6 "rounded down to the venue tick").
func RoundDownTick(price, tick float64) float64 {
	return roundToStep(price, tick, decimal.Decimal.Floor)
}

// RoundUpTick ceils price to the nearest multiple of tick.
func RoundUpTick(price, tick float64) float64 {
	return roundToStep(price, tick, decimal.Decimal.Ceil)
}

// RoundUpLot ceils size to the nearest multiple of lot (spec.md §4.6:
// taker size is "rounded up to the venue lot").
func RoundUpLot(size, lot float64) float64 {
	return roundToStep(size, lot, decimal.Decimal.Ceil)
}

func roundToStep(value, step float64, round func(decimal.Decimal) decimal.Decimal) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	ratio := v.Div(s)
	rounded := round(ratio)
	f, _ := rounded.Mul(s).Float64()
	return f
}

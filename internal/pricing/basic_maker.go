package pricing

import (
	"math"

	"leadlag/pkg/types"
)

// BasicMakerContext carries one pricing evaluation's inputs (spec.md §4.7).
type BasicMakerContext struct {
	TheoBid float64
	TheoAsk float64
	Ticker  types.Ticker
	NowMs   int64
}

// BasicMaker implements the basic maker pricing model: quotes clamped
// inside the book, with a min_price_diff repricing-suppression value
// attached for the order manager.
type BasicMaker struct {
	PosUnitUSD float64
	PosLimit   float64
	MinBps     float64 // min_price_diff floor, in basis points of mid
	MinTick    float64 // min_price_diff floor, in multiples of tick
}

// NewBasicMaker constructs a basic maker pricing model.
func NewBasicMaker(posUnitUSD, posLimit, minBps, minTick float64) *BasicMaker {
	return &BasicMaker{PosUnitUSD: posUnitUSD, PosLimit: posLimit, MinBps: minBps, MinTick: minTick}
}

// MaxUSDPosition mirrors original_source/src/models/basic_pricing.rs's
// quirk: a position_limit of (effectively) 1.0 is treated as a 10% cap
// rather than a 100% cap, guarding against a config typo of "1" meaning
// "one unit" instead of "full limit".
func (bm *BasicMaker) MaxUSDPosition() float64 {
	if math.Abs(bm.PosLimit-1.0) < 1e-8 {
		return bm.PosUnitUSD * 0.1
	}
	return bm.PosUnitUSD * bm.PosLimit
}

// GetMakerCtx computes the clamped bid/ask quote intents.
func (bm *BasicMaker) GetMakerCtx(ctx BasicMakerContext, rule TradeRule) []types.OrderIntent {
	bidCandidate := min3(ctx.TheoBid, ctx.Ticker.BidPrice1+rule.Tick, ctx.Ticker.AskPrice1-rule.Tick)
	askCandidate := max3(ctx.TheoAsk, ctx.Ticker.AskPrice1-rule.Tick, ctx.Ticker.BidPrice1+rule.Tick)

	bidPrice := RoundDownTick(bidCandidate, rule.Tick)
	askPrice := RoundUpTick(askCandidate, rule.Tick)

	mid := ctx.Ticker.Mid()
	minPriceDiff := max2(mid*bm.MinBps*1e-4, rule.Tick*bm.MinTick)
	maxUSD := bm.MaxUSDPosition()

	bidSize := RoundUpLot(bm.PosUnitUSD/bidPrice, rule.Lot)
	askSize := RoundUpLot(bm.PosUnitUSD/askPrice, rule.Lot)

	bp, ap := bidPrice, askPrice
	return []types.OrderIntent{
		{
			Asset:          ctx.Ticker.Asset,
			Price:          &bp,
			Size:           bidSize,
			IsPostOnly:     true,
			MaxUSDPosition: maxUSD,
			MinPriceDiff:   minPriceDiff,
			NowMs:          ctx.NowMs,
		},
		{
			Asset:          ctx.Ticker.Asset,
			Price:          &ap,
			Size:           -askSize,
			IsPostOnly:     true,
			MaxUSDPosition: maxUSD,
			MinPriceDiff:   minPriceDiff,
			NowMs:          ctx.NowMs,
		},
	}
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func min3(a, b, c float64) float64 {
	return min2(min2(a, b), c)
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c float64) float64 {
	return max2(max2(a, b), c)
}

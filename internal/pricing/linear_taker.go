package pricing

import "leadlag/pkg/types"

// LinearTakerContext carries one pricing evaluation's inputs (spec.md §4.6).
type LinearTakerContext struct {
	TheoBid      float64
	TheoAsk      float64
	Ticker       types.Ticker
	PositionUSD  float64
	NowMs        int64
}

// LinearTakerReport is the diagnostic record emitted alongside any order
// intents, for telemetry (spec.md §4.6, §4.11).
type LinearTakerReport struct {
	BuyThreshold  float64
	BuyProfit     float64
	SellThreshold float64
	SellProfit    float64
}

// LinearTaker implements the linear taker pricing model: an asymmetric
// position-bias threshold/profit comparison producing zero, one, or two
// IOC/market order intents per evaluation.
type LinearTaker struct {
	Threshold  float64 // τ
	Fee        float64 // φ
	PosUnitUSD float64 // U
	PosLimit   float64 // L (units)
	BiasRate   *float64 // β, nil => no bias
}

// NewLinearTaker constructs a linear taker pricing model.
func NewLinearTaker(threshold, fee, posUnitUSD, posLimit float64, biasRate *float64) *LinearTaker {
	return &LinearTaker{
		Threshold:  threshold,
		Fee:        fee,
		PosUnitUSD: posUnitUSD,
		PosLimit:   posLimit,
		BiasRate:   biasRate,
	}
}

// MaxUSDPosition is U*L, the position-limit cap carried on every intent.
func (lt *LinearTaker) MaxUSDPosition() float64 {
	return lt.PosUnitUSD * lt.PosLimit
}

// GetTakerCtx evaluates both branches and returns the resulting intents
// (0, 1, or 2) plus the diagnostic report.
func (lt *LinearTaker) GetTakerCtx(ctx LinearTakerContext, rule TradeRule) ([]types.OrderIntent, LinearTakerReport) {
	rawBias := ctx.PositionUSD / lt.PosUnitUSD
	var buyBias, sellBias float64
	if lt.BiasRate != nil {
		if rawBias > 0 {
			buyBias = rawBias * *lt.BiasRate
		} else if rawBias < 0 {
			sellBias = -rawBias * *lt.BiasRate
		}
	}

	report := LinearTakerReport{
		BuyThreshold:  lt.Threshold + lt.Fee + buyBias,
		BuyProfit:     ctx.TheoBid/ctx.Ticker.AskPrice1 - 1,
		SellThreshold: lt.Threshold + lt.Fee + sellBias,
		SellProfit:    1 - ctx.TheoAsk/ctx.Ticker.BidPrice1,
	}

	var intents []types.OrderIntent
	maxUSD := lt.MaxUSDPosition()

	if report.BuyProfit > report.BuyThreshold {
		price := RoundDownTick(ctx.Ticker.AskPrice1*(1+report.BuyProfit-report.BuyThreshold), rule.Tick)
		size := RoundUpLot(lt.PosUnitUSD/price, rule.Lot)
		p := price
		intents = append(intents, types.OrderIntent{
			Asset:          ctx.Ticker.Asset,
			Price:          &p,
			Size:           size,
			IsMarket:       false,
			MaxUSDPosition: maxUSD,
			NowMs:          ctx.NowMs,
		})
	}

	if report.SellProfit > report.SellThreshold {
		price := RoundUpTick(ctx.Ticker.BidPrice1*(1-(report.SellProfit-report.SellThreshold)), rule.Tick)
		size := RoundUpLot(lt.PosUnitUSD/price, rule.Lot)
		p := price
		intents = append(intents, types.OrderIntent{
			Asset:          ctx.Ticker.Asset,
			Price:          &p,
			Size:           -size,
			IsMarket:       false,
			MaxUSDPosition: maxUSD,
			NowMs:          ctx.NowMs,
		})
	}

	return intents, report
}

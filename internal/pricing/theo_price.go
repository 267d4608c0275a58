// Package pricing derives theoretical fair prices and order intents from
// the offset cache and venue tickers (spec.md §4.5-§4.8), grounded on
// original_source/lead_lag_hft/src/models/offset_theo_price.rs,
// original_source/src/models/basic_linear_pricing.rs,
// original_source/src/models/basic_pricing.rs, and
// original_source/src/new_coin_maker/new_coin_maker_model.rs.
package pricing

import (
	"errors"
	"fmt"

	"leadlag/internal/calc"
	"leadlag/pkg/types"
)

// ErrOffsetNotInitialized is returned by TheoTakerPrice when the matched
// offset has never committed a sample (spec.md §4.5: the taker formula
// requires Init=true).
var ErrOffsetNotInitialized = errors.New("pricing: offset not initialized")

// TheoMakerPrice computes the maker-side theoretical ask/bid from the lead
// ticker and its a2a/a2b offsets (spec.md §4.5).
func TheoMakerPrice(lead types.Ticker, offset *calc.OffsetEMA) (ask, bid float64) {
	ask = (offset.A2A + 1) * lead.AskPrice1
	bid = (offset.A2B + 1) * lead.BidPrice1
	return
}

// TheoTakerPrice computes the taker-side theoretical ask/bid, using the
// opposite side of the lead to construct a conservative crossing price
// (spec.md §4.5). Requires offset.Init; otherwise returns
// ErrOffsetNotInitialized.
func TheoTakerPrice(lead types.Ticker, offset *calc.OffsetEMA) (ask, bid float64, err error) {
	if !offset.Init {
		return 0, 0, fmt.Errorf("%w: asset %s", ErrOffsetNotInitialized, lead.Asset)
	}
	ask = (offset.A2B + 1) * lead.BidPrice1
	bid = (offset.B2A + 1) * lead.AskPrice1
	return ask, bid, nil
}

// Package types holds the shared vocabulary of the lead/lag engine: asset
// identity, normalized top-of-book snapshots, and the order intents the
// pricing models hand to the order manager. Nothing in this package depends
// on any other internal package.
package types

import (
	"fmt"
	"strings"
)

// ExchangeID names a trading venue. Credentials and market data are scoped
// to one ExchangeID per Asset.
type ExchangeID string

// AssetType distinguishes contract kinds. Only non-SPOT types are tradable
// by this engine (spec.md §3); SPOT assets are rejected at startup when a
// behavior registers them (strategy.RegisterAsset), not by config.Validate.
type AssetType string

const (
	AssetSpot    AssetType = "SPOT"
	AssetSwap    AssetType = "SWAP"
	AssetFuture  AssetType = "FUTURE"
	AssetOption  AssetType = "OPTION"
)

// Asset is a totally ordered, hashable instrument identifier:
// (exchange, asset_type, base, quote).
type Asset struct {
	Exchange ExchangeID
	Type     AssetType
	Base     string
	Quote    string
}

// String renders the canonical "EXCHANGE:TYPE:BASE-QUOTE" form used as a
// map key, log field, and KV/telemetry field-name component.
func (a Asset) String() string {
	return fmt.Sprintf("%s:%s:%s-%s", a.Exchange, a.Type, a.Base, a.Quote)
}

// Less gives Asset a total order by its String form, for callers that need
// a deterministic iteration order.
func (a Asset) Less(other Asset) bool {
	return a.String() < other.String()
}

// ParseAsset parses the "EXCHANGE:TYPE:BASE-QUOTE" form produced by
// String, the inverse used when config or telemetry keys hand back a flat
// asset string (spec.md §6 trade_assets[].asset/lead_asset).
func ParseAsset(s string) (Asset, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Asset{}, fmt.Errorf("types: invalid asset %q: want EXCHANGE:TYPE:BASE-QUOTE", s)
	}
	baseQuote := strings.SplitN(parts[2], "-", 2)
	if len(baseQuote) != 2 {
		return Asset{}, fmt.Errorf("types: invalid asset %q: want BASE-QUOTE after type", s)
	}
	return Asset{
		Exchange: ExchangeID(parts[0]),
		Type:     AssetType(parts[1]),
		Base:     baseQuote[0],
		Quote:    baseQuote[1],
	}, nil
}

// Side is a taker/maker order direction.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// DepthSnapshot is the normalized top-of-book update the market bus
// produces. A Ticker is derived from one when both sides have a level-1.
type DepthSnapshot struct {
	Asset         Asset
	TransactionMs int64 // venue-reported event time
	ReceiveMs     int64 // local receive time
	AskPrice1     float64
	BidPrice1     float64
	AskVolume1    float64
	BidVolume1    float64
	HasAsk        bool
	HasBid        bool
}

// TradeEvent is a single executed trade print from the market bus.
type TradeEvent struct {
	Asset  Asset
	ID     int64
	Price  float64
	Volume float64 // always positive; side carried separately when needed
	TsMs   int64
}

// Ticker is the normalized top-of-book snapshot the strategy loop caches
// per asset (spec.md §3). Built by FromDepth only when both sides of the
// DepthSnapshot carry a level-1 price; otherwise construction fails and the
// caller must keep the previous ticker (or none).
type Ticker struct {
	Asset         Asset
	TransactionMs int64
	ReceiveMs     int64
	AskPrice1     float64
	BidPrice1     float64
	AskVolume1    float64
	BidVolume1    float64
}

// FromDepth builds a Ticker from a depth snapshot, requiring both a best
// bid and a best ask to be present. Mirrors
// original_source/lead_lag_hft/src/domains/common.rs::from_depth.
func FromDepth(d DepthSnapshot) (Ticker, bool) {
	if !d.HasAsk || !d.HasBid {
		return Ticker{}, false
	}
	return Ticker{
		Asset:         d.Asset,
		TransactionMs: d.TransactionMs,
		ReceiveMs:     d.ReceiveMs,
		AskPrice1:     d.AskPrice1,
		BidPrice1:     d.BidPrice1,
		AskVolume1:    d.AskVolume1,
		BidVolume1:    d.BidVolume1,
	}, true
}

// Delay is ReceiveMs - TransactionMs, the non-negative invariant the spec
// calls out; negative values indicate a clock-skew bug upstream and are
// returned as-is for the caller to log, not clamped.
func (t Ticker) Delay() int64 {
	return t.ReceiveMs - t.TransactionMs
}

// Mid is the top-of-book midpoint.
func (t Ticker) Mid() float64 {
	return (t.AskPrice1 + t.BidPrice1) / 2
}

// Spread is ask minus bid; non-negative in a healthy book.
func (t Ticker) Spread() float64 {
	return t.AskPrice1 - t.BidPrice1
}

// OrderKind distinguishes the venue order types the order manager emits.
type OrderKind string

const (
	OrderMarket   OrderKind = "MARKET"
	OrderIOC      OrderKind = "IOC"
	OrderPostOnly OrderKind = "POST_ONLY"
)

// OrderIntent is the pricing models' output: a candidate order for the
// order manager to gate and submit. Price is unset (nil) for market
// orders. Negative Size means sell (spec.md §3).
type OrderIntent struct {
	Asset            Asset
	Price            *float64
	Size             float64 // signed: negative => sell
	IsMarket         bool
	IsPostOnly       bool
	MaxUSDPosition   float64
	MaxOrderCount    int
	MinPriceDiff     float64 // maker-only: repricing-suppression threshold
	NowMs            int64
}

// Kind reports the venue order type this intent should submit as.
func (oi OrderIntent) Kind() OrderKind {
	switch {
	case oi.IsMarket:
		return OrderMarket
	case oi.IsPostOnly:
		return OrderPostOnly
	default:
		return OrderIOC
	}
}

// OrderRequest is what the order manager hands to the PrivateClient.
type OrderRequest struct {
	Asset Asset
	Side  Side
	Price float64 // 0 for market orders
	Size  float64 // always positive; Side carries direction
	Kind  OrderKind
}

// OrderAck is the PrivateClient's response to a submitted OrderRequest.
type OrderAck struct {
	OrderID string
	Success bool
}

// OpenOrder is one resting order as reported by the private client.
type OpenOrder struct {
	OrderID string
	Price   float64
	Size    float64 // positive; Side below carries direction
	Side    Side
}

// PositionSnapshot is the private client's view of one asset's order and
// position state, consumed by oms.SyncPositionAndOrders (spec.md §4.9).
type PositionSnapshot struct {
	OpenOrders        []OpenOrder
	PendingCount      int
	CancelingCount    int
	CurrentUSDVolume  float64 // signed base-asset volume at last confirmed fill
	PositionKnown     bool
}

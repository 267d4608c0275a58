// Package oms implements the per-asset order manager: readiness gating,
// position-limit checks with cancel-list generation, quote-cadence
// gating, and taker/maker submission (spec.md §4.9, grounded on
// original_source/lead_lag_hft/src/oms.rs). The position/order snapshot
// idiom is adapted from the teacher's internal/strategy/inventory.go
// (atomic-replace-on-sync) and internal/strategy/maker.go's
// reconcileOrders cancel-diffing.
package oms

import (
	"context"
	"errors"
	"fmt"
	"math"

	"leadlag/pkg/types"
)

// Errors that ARE true errors per spec.md §4.9/§7 — everything else
// (not-ready, unsafe, cadence-gated, position-limited) is a silent no-op.
var (
	ErrAssetMismatch = errors.New("oms: intent asset does not match manager asset")
	ErrMissingPrice  = errors.New("oms: non-market intent missing a price")
)

// PrivateClient is the narrow external-collaborator interface the order
// manager depends on (spec.md §1/§6). A concrete adapter lives in
// internal/exchange.
type PrivateClient interface {
	Submit(ctx context.Context, req types.OrderRequest) (types.OrderAck, error)
	Cancel(ctx context.Context, orderIDs []string) error
	SafeToPost() bool
}

// State is the position view described in spec.md §3.
type State struct {
	OpenBids           []types.OpenOrder
	OpenAsks           []types.OpenOrder
	PendingCount       int
	CancelingCount     int
	CurrentUSDPosition float64
	VirtualUSDPosition float64
	PositionKnown      bool
	LastQuoteMs        int64
}

// Manager is the per-asset order manager.
type Manager struct {
	Asset         types.Asset
	QuoteIntvalMs int64
	Trading       bool
	client        PrivateClient
	state         State
}

// New constructs an order manager for one asset.
func New(asset types.Asset, quoteIntvalMs int64, trading bool, client PrivateClient) *Manager {
	return &Manager{
		Asset:         asset,
		QuoteIntvalMs: quoteIntvalMs,
		Trading:       trading,
		client:        client,
	}
}

// State returns a copy of the manager's current position view.
func (m *Manager) State() State {
	return m.state
}

// SyncPositionAndOrders replaces the snapshot atomically from the private
// client: opens are split by side into bids/asks, pendings/canceling
// counts are copied verbatim, and the USD position (already converted from
// base-asset volume by the caller via mid-price, spec.md §4.10 step 6) is
// applied to both the current and virtual views.
func (m *Manager) SyncPositionAndOrders(snap types.PositionSnapshot, usdPosition float64) {
	var bids, asks []types.OpenOrder
	for _, o := range snap.OpenOrders {
		if o.Side == types.Buy {
			bids = append(bids, o)
		} else {
			asks = append(asks, o)
		}
	}
	m.state.OpenBids = bids
	m.state.OpenAsks = asks
	m.state.PendingCount = snap.PendingCount
	m.state.CancelingCount = snap.CancelingCount
	m.state.CurrentUSDPosition = usdPosition
	m.state.VirtualUSDPosition = usdPosition
	m.state.PositionKnown = snap.PositionKnown
}

// IsReady reports the readiness gate (spec.md §4.9, property 7): no
// pendings outstanding, no cancels outstanding, virtual position known.
func (m *Manager) IsReady() bool {
	return m.state.PendingCount == 0 && m.state.CancelingCount == 0 && m.state.PositionKnown
}

// IsSafeToPost reports the cadence + trading + private-client safety gate.
func (m *Manager) IsSafeToPost(nowMs int64) bool {
	if nowMs < m.state.LastQuoteMs+m.QuoteIntvalMs {
		return false
	}
	if !m.Trading {
		return false
	}
	return m.client.SafeToPost()
}

// PositionCheck enforces the position-limit gate (spec.md §4.9, property
// 6): a positive-size intent arriving while the virtual position already
// exceeds MaxUSDPosition is suppressed and every open bid is queued for
// cancellation (symmetrically for negative-size intents and asks).
func (m *Manager) PositionCheck(intent types.OrderIntent) (cancelIDs []string, permitted bool) {
	switch {
	case intent.Size > 0 && m.state.VirtualUSDPosition > intent.MaxUSDPosition:
		for _, o := range m.state.OpenBids {
			cancelIDs = append(cancelIDs, o.OrderID)
		}
		return cancelIDs, false
	case intent.Size < 0 && m.state.VirtualUSDPosition < -intent.MaxUSDPosition:
		for _, o := range m.state.OpenAsks {
			cancelIDs = append(cancelIDs, o.OrderID)
		}
		return cancelIDs, false
	default:
		return nil, true
	}
}

func (m *Manager) validateIntent(intent types.OrderIntent) error {
	if intent.Asset != m.Asset {
		return fmt.Errorf("%w: intent for %s, manager for %s", ErrAssetMismatch, intent.Asset, m.Asset)
	}
	if !intent.IsMarket && intent.Price == nil {
		return fmt.Errorf("%w: asset %s", ErrMissingPrice, intent.Asset)
	}
	return nil
}

// DoTaker runs the taker submission pipeline (spec.md §4.9 steps 1-7).
// Silent no-op returns nil for deferred/gated conditions; only
// asset-mismatch and missing-price are true errors.
func (m *Manager) DoTaker(ctx context.Context, intent types.OrderIntent) error {
	if err := m.validateIntent(intent); err != nil {
		return err
	}
	if !m.IsReady() {
		return nil
	}

	cancelIDs, permitted := m.PositionCheck(intent)
	if len(cancelIDs) > 0 {
		if err := m.client.Cancel(ctx, cancelIDs); err != nil {
			return nil // external I/O errors are logged by the caller, not propagated
		}
	}
	if !permitted {
		return nil
	}
	if !m.IsSafeToPost(intent.NowMs) {
		return nil
	}

	kind := types.OrderIOC
	if intent.IsMarket {
		kind = types.OrderMarket
	}
	side := types.Buy
	size := intent.Size
	if size < 0 {
		side = types.Sell
		size = -size
	}
	price := 0.0
	if intent.Price != nil {
		price = *intent.Price
	}

	if _, err := m.client.Submit(ctx, types.OrderRequest{
		Asset: intent.Asset,
		Side:  side,
		Price: price,
		Size:  size,
		Kind:  kind,
	}); err != nil {
		return nil
	}
	m.state.LastQuoteMs = intent.NowMs
	return nil
}

// DoMaker runs the maker submission pipeline: identical gating to DoTaker,
// plus a repricing-suppression check against currently resting orders on
// the same side — if a resting order already sits within MinPriceDiff of
// the new quote, the post is suppressed to avoid churn (spec.md §4.9).
func (m *Manager) DoMaker(ctx context.Context, intent types.OrderIntent) error {
	if err := m.validateIntent(intent); err != nil {
		return err
	}
	if !m.IsReady() {
		return nil
	}

	cancelIDs, permitted := m.PositionCheck(intent)
	if len(cancelIDs) > 0 {
		if err := m.client.Cancel(ctx, cancelIDs); err != nil {
			return nil
		}
	}
	if !permitted {
		return nil
	}
	if !m.IsSafeToPost(intent.NowMs) {
		return nil
	}

	resting := m.state.OpenBids
	if intent.Size < 0 {
		resting = m.state.OpenAsks
	}
	for _, o := range resting {
		if math.Abs(o.Price-*intent.Price) < intent.MinPriceDiff {
			return nil
		}
	}

	side := types.Buy
	size := intent.Size
	if size < 0 {
		side = types.Sell
		size = -size
	}
	if _, err := m.client.Submit(ctx, types.OrderRequest{
		Asset: intent.Asset,
		Side:  side,
		Price: *intent.Price,
		Size:  size,
		Kind:  types.OrderPostOnly,
	}); err != nil {
		return nil
	}
	m.state.LastQuoteMs = intent.NowMs
	return nil
}

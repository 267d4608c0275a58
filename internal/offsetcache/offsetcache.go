// Package offsetcache maintains, per lag asset, the full grid of
// per-period OffsetEMAs derived from its matched lead asset, with the
// freshness gating that governs whether a given (lead, lag) observation is
// admitted (spec.md §4.4, grounded on
// original_source/lead_lag_hft/src/calculator/offset_cache.rs).
package offsetcache

import (
	"fmt"

	"leadlag/internal/calc"
	"leadlag/pkg/types"
)

// PeriodOffset is one period's OffsetEMA, labeled for reporting/queries.
type PeriodOffset struct {
	Period string
	EMA    *calc.OffsetEMA
}

// Thresholds are the four-gate freshness limits (ms) from spec.md §4.4.
type Thresholds struct {
	LeadMaxDelay      int64
	LagMaxDelay       int64
	LeadMaxExpiration int64
}

// WarmStore resolves a persisted OffsetEMAState for (lag asset, period),
// or reports it absent. Implemented by internal/persistence.KVStore
// adapters at the strategy-construction boundary (spec.md §9 "warm-start
// indirection": the cache's own Init reads no I/O itself).
type WarmStore interface {
	OffsetState(lag types.Asset, period string) (calc.OffsetEMAState, bool, error)
}

// Cache is the lead<->lag offset cache described in spec.md §3/§4.4.
type Cache struct {
	thresholds Thresholds
	lead2lag   map[types.Asset]types.Asset
	lag2lead   map[types.Asset]types.Asset
	periods    map[types.Asset][]*PeriodOffset // keyed by lag asset
	init       bool
}

// New constructs an empty cache; call Init to populate the period grid.
func New(thresholds Thresholds) *Cache {
	return &Cache{
		thresholds: thresholds,
		lead2lag:   make(map[types.Asset]types.Asset),
		lag2lead:   make(map[types.Asset]types.Asset),
		periods:    make(map[types.Asset][]*PeriodOffset),
	}
}

// Init builds the period grid for every configured lag, one OffsetEMA per
// (lag, period), warm-starting each from store when available. lead2lag
// must be injective (spec.md §3 invariant); Init returns an error if a lag
// asset is mapped from more than one lead.
func (c *Cache) Init(lead2lag map[types.Asset]types.Asset, periodConfigs []calc.EMAParams, store WarmStore) error {
	seenLag := make(map[types.Asset]types.Asset, len(lead2lag))
	for lead, lag := range lead2lag {
		if prevLead, ok := seenLag[lag]; ok {
			return fmt.Errorf("offsetcache: lag %s mapped from both %s and %s (lead->lag must be injective)", lag, prevLead, lead)
		}
		seenLag[lag] = lead

		c.lead2lag[lead] = lag
		c.lag2lead[lag] = lead

		offsets := make([]*PeriodOffset, 0, len(periodConfigs))
		for _, params := range periodConfigs {
			var warm *calc.OffsetEMAState
			if store != nil {
				if state, found, err := store.OffsetState(lag, params.Period); err == nil && found {
					warm = &state
				}
				// Per DESIGN.md Open Question (a): a store error is treated
				// the same as "not found"; it is not logged.
			}
			offsets = append(offsets, &PeriodOffset{
				Period: params.Period,
				EMA:    calc.NewOffsetEMA(params, warm),
			})
		}
		c.periods[lag] = offsets
	}
	c.init = true
	return nil
}

// Initialized reports whether the cache has been populated via Init.
func (c *Cache) Initialized() bool {
	return c.init
}

// UpdateError enumerates the four freshness/config gates, distinctly
// reported (spec.md §4.4).
type UpdateError struct {
	Reason string
}

func (e *UpdateError) Error() string { return e.Reason }

// Update enforces, in order: lead delay, lag delay, lead wall-clock
// expiration, then lag presence. On success every period's OffsetEMA is
// advanced from (lead, lag, nowMs).
func (c *Cache) Update(lead, lag types.Ticker, nowMs int64) error {
	if lead.Delay() > c.thresholds.LeadMaxDelay {
		return &UpdateError{Reason: fmt.Sprintf("lead %s delay %d exceeds max %d", lead.Asset, lead.Delay(), c.thresholds.LeadMaxDelay)}
	}
	if lag.Delay() > c.thresholds.LagMaxDelay {
		return &UpdateError{Reason: fmt.Sprintf("lag %s delay %d exceeds max %d", lag.Asset, lag.Delay(), c.thresholds.LagMaxDelay)}
	}
	if nowMs-lead.ReceiveMs > c.thresholds.LeadMaxExpiration {
		return &UpdateError{Reason: fmt.Sprintf("lead %s snapshot age %d exceeds max %d", lead.Asset, nowMs-lead.ReceiveMs, c.thresholds.LeadMaxExpiration)}
	}
	offsets, ok := c.periods[lag.Asset]
	if !ok {
		return &UpdateError{Reason: fmt.Sprintf("lag %s not configured in offset cache", lag.Asset)}
	}

	for _, po := range offsets {
		po.EMA.Update(lead, lag, nowMs)
	}
	return nil
}

// resolveLag follows lead->lag if asset is a lead; returns asset unchanged
// (as a lag) otherwise. Ok is false if asset is neither a known lead nor a
// known lag (spec.md §9 "lead->lag resolution invariant").
func (c *Cache) resolveLag(asset types.Asset) (types.Asset, bool) {
	if lag, isLead := c.lead2lag[asset]; isLead {
		return lag, true
	}
	if _, isLag := c.lag2lead[asset]; isLag {
		return asset, true
	}
	return types.Asset{}, false
}

// GetOffset resolves asset (lead or lag) to its lag bucket and returns the
// named period's OffsetEMA.
func (c *Cache) GetOffset(asset types.Asset, period string) (*calc.OffsetEMA, bool) {
	lag, ok := c.resolveLag(asset)
	if !ok {
		return nil, false
	}
	for _, po := range c.periods[lag] {
		if po.Period == period {
			return po.EMA, true
		}
	}
	return nil, false
}

// GetAllOffset resolves asset (lead or lag) to its lag bucket and returns
// every configured period's offset.
func (c *Cache) GetAllOffset(asset types.Asset) ([]*PeriodOffset, bool) {
	lag, ok := c.resolveLag(asset)
	if !ok {
		return nil, false
	}
	offsets, ok := c.periods[lag]
	return offsets, ok
}

// Lag returns the lag asset matched to lead, if any.
func (c *Cache) Lag(lead types.Asset) (types.Asset, bool) {
	lag, ok := c.lead2lag[lead]
	return lag, ok
}

// Lead returns the lead asset matched to lag, if any.
func (c *Cache) Lead(lag types.Asset) (types.Asset, bool) {
	lead, ok := c.lag2lead[lag]
	return lead, ok
}

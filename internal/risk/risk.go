// Package risk enforces portfolio-level limits that feed the order
// manager's safety-to-post gate (spec.md §4.9 "private client reports
// safe-to-post"). Adapted from the teacher's internal/risk/manager.go:
// the goroutine+channel design is collapsed into direct-call methods,
// since spec.md §5 forbids locks and parallel access in the core — there
// is exactly one caller (the strategy loop) and no concurrent reporters.
package risk

import (
	"fmt"
	"time"
)

// Config mirrors the teacher's RiskConfig fields, generalized from
// per-market Polymarket exposure to per-asset USD exposure.
type Config struct {
	MaxPositionPerAsset float64
	MaxGlobalExposure   float64
	MaxDailyLoss        float64
	KillSwitchDropPct   float64
	KillSwitchWindowSec int
	CooldownAfterKill   time.Duration
}

type priceAnchor struct {
	price float64
	tsMs  int64
}

// Monitor is the single-threaded kill-switch, with no internal goroutine or
// channel. Limits are evaluated only inside Report; the strategy loop does
// not call Report, and cmd/bot/main.go reads the monitor only through
// SafeToPost.
type Monitor struct {
	cfg Config

	exposures        map[string]float64 // per-asset key -> USD exposure
	realizedPnL      map[string]float64
	totalExposure    float64
	totalRealizedPnL float64

	anchors map[string]priceAnchor

	killSwitchActive bool
	killSwitchUntil  time.Time
	killReason       string
}

// New constructs a risk monitor.
func New(cfg Config) *Monitor {
	return &Monitor{
		cfg:         cfg,
		exposures:   make(map[string]float64),
		realizedPnL: make(map[string]float64),
		anchors:     make(map[string]priceAnchor),
	}
}

// Report submits the latest exposure/PnL/price reading for one asset and
// re-evaluates every limit. Call once per tick per tracked asset.
func (m *Monitor) Report(assetKey string, exposureUSD, realizedPnL, unrealizedPnL, midPrice float64, nowMs int64) {
	m.exposures[assetKey] = exposureUSD
	m.realizedPnL[assetKey] = realizedPnL

	m.totalExposure = 0
	m.totalRealizedPnL = 0
	for _, e := range m.exposures {
		m.totalExposure += e
	}
	for _, p := range m.realizedPnL {
		m.totalRealizedPnL += p
	}

	if exposureUSD > m.cfg.MaxPositionPerAsset {
		m.trip(assetKey, fmt.Sprintf("per-asset position limit breached: %.2f > %.2f", exposureUSD, m.cfg.MaxPositionPerAsset), nowMs)
	}
	if m.totalExposure > m.cfg.MaxGlobalExposure {
		m.trip("", fmt.Sprintf("global exposure limit breached: %.2f > %.2f", m.totalExposure, m.cfg.MaxGlobalExposure), nowMs)
	}
	if m.totalRealizedPnL+unrealizedPnL < -m.cfg.MaxDailyLoss {
		m.trip("", "max daily loss breached", nowMs)
	}
	m.checkPriceMovement(assetKey, midPrice, nowMs)
}

func (m *Monitor) checkPriceMovement(assetKey string, midPrice float64, nowMs int64) {
	windowMs := int64(m.cfg.KillSwitchWindowSec) * 1000
	anchor, ok := m.anchors[assetKey]
	if !ok || nowMs-anchor.tsMs > windowMs {
		m.anchors[assetKey] = priceAnchor{price: midPrice, tsMs: nowMs}
		return
	}
	if anchor.price == 0 {
		return
	}
	pctChange := (midPrice - anchor.price) / anchor.price
	if pctChange < 0 {
		pctChange = -pctChange
	}
	if pctChange > m.cfg.KillSwitchDropPct {
		m.trip(assetKey, fmt.Sprintf("rapid price movement: %.2f%% in %ds", pctChange*100, m.cfg.KillSwitchWindowSec), nowMs)
	}
}

func (m *Monitor) trip(assetKey, reason string, nowMs int64) {
	m.killSwitchActive = true
	m.killSwitchUntil = time.UnixMilli(nowMs).Add(m.cfg.CooldownAfterKill)
	m.killReason = reason
}

// SafeToPost reports whether the kill switch is clear, clearing an expired
// cooldown as a side effect (called from the order manager's
// IsSafeToPost path via a PrivateClient-shaped adapter, or directly by a
// behavior before invoking DoTaker/DoMaker).
func (m *Monitor) SafeToPost(nowMs int64) bool {
	if !m.killSwitchActive {
		return true
	}
	if time.UnixMilli(nowMs).After(m.killSwitchUntil) {
		m.killSwitchActive = false
		return true
	}
	return false
}

// KillReason returns the reason the kill switch last tripped, if active.
func (m *Monitor) KillReason() string {
	if !m.killSwitchActive {
		return ""
	}
	return m.killReason
}

// RemainingBudget returns the smaller of per-asset and global headroom,
// clamped to 0.
func (m *Monitor) RemainingBudget(assetKey string) float64 {
	perAsset := m.cfg.MaxPositionPerAsset - m.exposures[assetKey]
	global := m.cfg.MaxGlobalExposure - m.totalExposure
	remaining := perAsset
	if global < remaining {
		remaining = global
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemoveAsset clears state for an asset the strategy has stopped tracking.
func (m *Monitor) RemoveAsset(assetKey string) {
	delete(m.exposures, assetKey)
	delete(m.realizedPnL, assetKey)
	delete(m.anchors, assetKey)
}

// marketbus.go defines the narrow collaborator the strategy loop depends
// on for market data (spec.md §6 "external collaborators as narrow
// interfaces"), plus a WebSocket reference implementation adapted from the
// teacher's ws.go market channel.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"leadlag/pkg/types"
)

// MarketBus is the generic public-market-data collaborator: depth
// snapshots and trade prints for any configured asset. The strategy core
// never talks to a venue directly — only through this interface.
type MarketBus interface {
	// DepthEvents delivers every depth snapshot the bus receives.
	DepthEvents() <-chan types.DepthSnapshot
	// TradeEvents delivers every trade print the bus receives.
	TradeEvents() <-chan types.TradeEvent
	// Run connects and maintains the feed, blocking until ctx is cancelled.
	Run(ctx context.Context) error
	// Subscribe adds assets to the feed's tracked set.
	Subscribe(ctx context.Context, assets []types.Asset) error
	Close() error
}

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	depthBufferSize  = 256
	tradeBufferSize  = 64
)

// wsEnvelope peeks at the discriminator every venue's wire message carries,
// before unmarshalling into the concrete shape.
type wsEnvelope struct {
	Kind  string `json:"kind"`
	Asset string `json:"asset"`
}

type wsDepthMsg struct {
	Asset         string  `json:"asset"`
	TransactionMs int64   `json:"transaction_ms"`
	AskPrice1     float64 `json:"ask_price_1"`
	BidPrice1     float64 `json:"bid_price_1"`
	AskVolume1    float64 `json:"ask_volume_1"`
	BidVolume1    float64 `json:"bid_volume_1"`
	HasAsk        bool    `json:"has_ask"`
	HasBid        bool    `json:"has_bid"`
}

type wsTradeMsg struct {
	Asset  string  `json:"asset"`
	ID     int64   `json:"id"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	TsMs   int64   `json:"ts_ms"`
}

// WSMarketBus auto-reconnects with exponential backoff (1s -> 30s max) and
// re-subscribes to all tracked assets on reconnection, same as the
// teacher's WSFeed for the market channel.
type WSMarketBus struct {
	url        string
	assetByKey func(key string) (types.Asset, bool)

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	depthCh chan types.DepthSnapshot
	tradeCh chan types.TradeEvent

	logger *slog.Logger
}

// NewWSMarketBus creates a market-data feed. assetByKey resolves the wire
// format's asset key back to a types.Asset (the inverse of types.Asset's
// String method), letting venues choose their own on-wire identifiers.
func NewWSMarketBus(wsURL string, assetByKey func(key string) (types.Asset, bool), logger *slog.Logger) *WSMarketBus {
	return &WSMarketBus{
		url:        wsURL,
		assetByKey: assetByKey,
		subscribed: make(map[string]bool),
		depthCh:    make(chan types.DepthSnapshot, depthBufferSize),
		tradeCh:    make(chan types.TradeEvent, tradeBufferSize),
		logger:     logger.With("component", "ws_market"),
	}
}

func (f *WSMarketBus) DepthEvents() <-chan types.DepthSnapshot { return f.depthCh }
func (f *WSMarketBus) TradeEvents() <-chan types.TradeEvent    { return f.tradeCh }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (f *WSMarketBus) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("market bus disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Subscribe adds assets to the tracked set and sends a subscribe message.
func (f *WSMarketBus) Subscribe(ctx context.Context, assets []types.Asset) error {
	f.subscribedMu.Lock()
	for _, a := range assets {
		f.subscribed[a.String()] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(map[string]any{"op": "subscribe", "assets": assetKeys(assets)})
}

func assetKeys(assets []types.Asset) []string {
	keys := make([]string, len(assets))
	for i, a := range assets {
		keys[i] = a.String()
	}
	return keys
}

// Close gracefully closes the connection.
func (f *WSMarketBus) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *WSMarketBus) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("market bus connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *WSMarketBus) sendInitialSubscription() error {
	f.subscribedMu.RLock()
	keys := make([]string, 0, len(f.subscribed))
	for k := range f.subscribed {
		keys = append(keys, k)
	}
	f.subscribedMu.RUnlock()

	return f.writeJSON(map[string]any{"op": "subscribe", "assets": keys})
}

func (f *WSMarketBus) dispatchMessage(data []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json market bus message", "data", string(data))
		return
	}

	switch envelope.Kind {
	case "depth":
		var msg wsDepthMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Error("unmarshal depth message", "error", err)
			return
		}
		asset, ok := f.assetByKey(msg.Asset)
		if !ok {
			f.logger.Warn("depth message for unknown asset", "asset", msg.Asset)
			return
		}
		evt := types.DepthSnapshot{
			Asset:         asset,
			TransactionMs: msg.TransactionMs,
			ReceiveMs:     time.Now().UnixMilli(),
			AskPrice1:     msg.AskPrice1,
			BidPrice1:     msg.BidPrice1,
			AskVolume1:    msg.AskVolume1,
			BidVolume1:    msg.BidVolume1,
			HasAsk:        msg.HasAsk,
			HasBid:        msg.HasBid,
		}
		select {
		case f.depthCh <- evt:
		default:
			f.logger.Warn("depth channel full, dropping event", "asset", asset)
		}

	case "trade":
		var msg wsTradeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Error("unmarshal trade message", "error", err)
			return
		}
		asset, ok := f.assetByKey(msg.Asset)
		if !ok {
			f.logger.Warn("trade message for unknown asset", "asset", msg.Asset)
			return
		}
		evt := types.TradeEvent{Asset: asset, ID: msg.ID, Price: msg.Price, Volume: msg.Volume, TsMs: msg.TsMs}
		select {
		case f.tradeCh <- evt:
		default:
			f.logger.Warn("trade channel full, dropping event", "id", evt.ID)
		}

	default:
		f.logger.Debug("unknown market bus message kind", "kind", envelope.Kind)
	}
}

func (f *WSMarketBus) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("ping")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSMarketBus) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market bus not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WSMarketBus) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market bus not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

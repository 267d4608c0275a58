// privateclient.go defines the narrow trading collaborator the order
// manager depends on (spec.md §6), plus a REST reference implementation
// adapted from the teacher's client.go — HMAC-credentialed, rate-limited,
// retried, dry-run-aware, stripped of Polymarket's on-chain order-payload
// signing (EIP-712, maker/taker amount scaling) since this domain trades
// against a generic HMAC REST venue, not an on-chain CLOB.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"leadlag/internal/pricing"
	"leadlag/pkg/types"
)

// PrivateClient is the generic authenticated-trading collaborator the
// order manager submits through (spec.md §4.9).
type PrivateClient interface {
	Submit(ctx context.Context, req types.OrderRequest) (types.OrderAck, error)
	Cancel(ctx context.Context, orderIDs []string) error
	SafeToPost() bool
}

// TradingClient extends PrivateClient with the two read paths the
// strategy event loop needs once at init (TradeRule) and once per tick
// (Position) — split out from PrivateClient because the order manager
// itself never needs either (spec.md §4.9/§4.10, grounded on
// original_source/src/strategy.rs's legacy_client.send_request_block and
// bk_private.order_position_context).
type TradingClient interface {
	PrivateClient
	Position(ctx context.Context, asset types.Asset) (types.PositionSnapshot, error)
	TradeRule(ctx context.Context, asset types.Asset) (pricing.TradeRule, error)
}

// RESTClient is the production PrivateClient: an HMAC-signed REST client
// with per-category rate limiting, retry, and a dry-run mode.
type RESTClient struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	safe   func() bool
	logger *slog.Logger
}

// RESTClientConfig carries the construction-time knobs for one venue.
type RESTClientConfig struct {
	BaseURL string
	DryRun  bool
	// Safe reports real-time safety-to-post (e.g. a risk.Monitor's
	// SafeToPost), consulted by SafeToPost(). Defaults to always-true if nil.
	Safe func() bool
}

// NewRESTClient creates a REST client with rate limiting and retry,
// matching the teacher's NewClient idiom.
func NewRESTClient(cfg RESTClientConfig, auth *Auth, rl *RateLimiter, logger *slog.Logger) *RESTClient {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	safe := cfg.Safe
	if safe == nil {
		safe = func() bool { return true }
	}

	return &RESTClient{
		http:   http,
		auth:   auth,
		rl:     rl,
		dryRun: cfg.DryRun,
		safe:   safe,
		logger: logger,
	}
}

// SafeToPost delegates to the configured safety predicate.
func (c *RESTClient) SafeToPost() bool { return c.safe() }

// Submit places a single order.
func (c *RESTClient) Submit(ctx context.Context, req types.OrderRequest) (types.OrderAck, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would submit order", "asset", req.Asset, "side", req.Side, "price", req.Price, "size", req.Size)
		return types.OrderAck{OrderID: "dry-run", Success: true}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderAck{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return types.OrderAck{}, fmt.Errorf("exchange: marshal order: %w", err)
	}
	headers, err := c.auth.Headers("POST", "/orders", string(body))
	if err != nil {
		return types.OrderAck{}, fmt.Errorf("exchange: headers: %w", err)
	}

	var ack types.OrderAck
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(req).
		SetResult(&ack).
		Post("/orders")
	if err != nil {
		return types.OrderAck{}, fmt.Errorf("exchange: submit order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderAck{}, fmt.Errorf("exchange: submit order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return ack, nil
}

// Cancel cancels one or more orders by ID.
func (c *RESTClient) Cancel(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	payload := struct {
		OrderIDs []string `json:"order_ids"`
	}{OrderIDs: orderIDs}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("exchange: marshal cancel request: %w", err)
	}
	headers, err := c.auth.Headers("DELETE", "/orders", string(body))
	if err != nil {
		return fmt.Errorf("exchange: headers: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		Delete("/orders")
	if err != nil {
		return fmt.Errorf("exchange: cancel orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("exchange: cancel orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// GetDepth fetches the current top-of-book depth for one asset over REST.
// The strategy loop does not call it; its tickers come only from the
// market bus.
func (c *RESTClient) GetDepth(ctx context.Context, asset types.Asset) (types.DepthSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.DepthSnapshot{}, err
	}

	var result types.DepthSnapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("asset", asset.String()).
		SetResult(&result).
		Get("/depth")
	if err != nil {
		return types.DepthSnapshot{}, fmt.Errorf("exchange: get depth: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.DepthSnapshot{}, fmt.Errorf("exchange: get depth: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// Position fetches one asset's open-order/position snapshot, consulted
// once per tick by the strategy loop's sync_order_position step
// (spec.md §4.10 step 6).
func (c *RESTClient) Position(ctx context.Context, asset types.Asset) (types.PositionSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.PositionSnapshot{}, err
	}

	var result types.PositionSnapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("asset", asset.String()).
		SetResult(&result).
		Get("/position")
	if err != nil {
		return types.PositionSnapshot{}, fmt.Errorf("exchange: get position: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.PositionSnapshot{}, fmt.Errorf("exchange: get position: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// TradeRule fetches one asset's tick/lot increments, consulted once at
// strategy init time (spec.md §4.10's on_init trade-rule fetch, grounded
// on original_source/src/strategy.rs's GetTradeRule legacy request).
func (c *RESTClient) TradeRule(ctx context.Context, asset types.Asset) (pricing.TradeRule, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return pricing.TradeRule{}, err
	}

	var result pricing.TradeRule
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("asset", asset.String()).
		SetResult(&result).
		Get("/trade-rule")
	if err != nil {
		return pricing.TradeRule{}, fmt.Errorf("exchange: get trade rule: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return pricing.TradeRule{}, fmt.Errorf("exchange: get trade rule: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

package exchange

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"leadlag/pkg/types"
)

func newDryRunClient() *RESTClient {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return &RESTClient{
		dryRun: true,
		rl:     NewRateLimiter(350, 50, 300, 30, 150, 15),
		safe:   func() bool { return true },
		logger: logger,
	}
}

func testOrderAsset() types.Asset {
	return types.Asset{Exchange: "OKX", Type: types.AssetSwap, Base: "BTC", Quote: "USDT"}
}

func TestDryRunSubmit(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	ack, err := c.Submit(context.Background(), types.OrderRequest{Asset: testOrderAsset(), Side: types.Buy, Price: 10, Size: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !ack.Success {
		t.Error("expected dry-run submit to report success")
	}
	if ack.OrderID == "" {
		t.Error("expected dry-run submit to return a non-empty order id")
	}
}

func TestDryRunCancel(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.Cancel(context.Background(), []string{"order-1", "order-2"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestDryRunCancelEmpty(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.Cancel(context.Background(), nil); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestSafeToPostDelegates(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()
	c.safe = func() bool { return false }

	if c.SafeToPost() {
		t.Error("expected SafeToPost to delegate to the configured predicate")
	}
}

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPSink posts Requests as JSON to a collector endpoint, following the
// same resty retry/timeout idiom as internal/exchange's REST client.
type HTTPSink struct {
	http *resty.Client
	path string
}

// NewHTTPSink builds a sink posting to baseURL+path.
func NewHTTPSink(baseURL, path string) *HTTPSink {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &HTTPSink{http: http, path: path}
}

// Send posts one request. The wire shape is a discriminated envelope so the
// collector can distinguish a batch from a global-summary ping without any
// unsafe type punning.
func (s *HTTPSink) Send(ctx context.Context, req Request) error {
	envelope := map[string]any{}
	switch r := req.(type) {
	case GlobalSummaryRequest:
		envelope["kind"] = "global_summary"
		envelope["instance_id"] = r.InstanceID
	case BatchRequest:
		envelope["kind"] = "batch"
		envelope["instance_id"] = r.InstanceID
		envelope["items"] = r.Items
	default:
		return fmt.Errorf("telemetry: unknown request type %T", req)
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(envelope).
		Post(s.path)
	if err != nil {
		return fmt.Errorf("telemetry: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telemetry: send: status %d", resp.StatusCode())
	}
	return nil
}

// NullSink discards every request; cmd/bot/main.go uses it when
// LEADLAG_TELEMETRY_URL is unset.
type NullSink struct{}

func (NullSink) Send(context.Context, Request) error { return nil }

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/middleware/requestid"
)

// errServiceNotConfigured is returned when the base URL for a downstream service is empty.
var errServiceNotConfigured = errors.New("service URL not configured")

// downstreamClient performs JSON calls against the eligibility and fulfillment services.
type downstreamClient struct {
	client  *http.Client
	metrics *MetricsService
}

func newDownstreamClient(timeout time.Duration, metrics *MetricsService) *downstreamClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &downstreamClient{client: &http.Client{Timeout: timeout}, metrics: metrics}
}

// getJSON issues a GET and decodes a 2xx JSON body into dest.
func (d *downstreamClient) getJSON(ctx context.Context, target, url string, dest interface{}) error {
	return d.do(ctx, target, http.MethodGet, url, nil, dest)
}

// postJSON issues a POST with a JSON payload. dest may be nil when the body is ignored.
func (d *downstreamClient) postJSON(ctx context.Context, target, url string, payload, dest interface{}) error {
	return d.do(ctx, target, http.MethodPost, url, payload, dest)
}

func (d *downstreamClient) do(ctx context.Context, target, method, url string, payload, dest interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", target, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrDownstream, fmt.Sprintf("build %s request", target))
	}
	req.Header.Set("Accept", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		d.metrics.ObserveDownstream(target, 0, time.Since(start))
		return appErrors.WrapAs(err, appErrors.ErrDownstream, fmt.Sprintf("%s unreachable", target))
	}
	defer resp.Body.Close()
	d.metrics.ObserveDownstream(target, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return appErrors.New(appErrors.ErrDownstream.Code, appErrors.ErrDownstream.Status, fmt.Sprintf("%s responded with status %d", target, resp.StatusCode))
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrDownstream, fmt.Sprintf("decode %s response", target))
	}
	return nil
}

// Package client fetches the upstream feeds behind the dashboard: the transit
// service-alerts feed, the NWS gridpoint API, the AQI proxy and PurpleAir.
// Clients never retry; a failed fetch is reported and the next poll cycle is the retry.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrNotFound         = errors.New("not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNoReading        = errors.New("no fresh reading")
	ErrInvalidRequest   = errors.New("invalid request")
)

// maxBodyBytes caps upstream response bodies. Gridpoint responses are the largest at a few MB.
const maxBodyBytes = 32 << 20

// getter performs instrumented GETs against one upstream.
type getter struct {
	upstream string
	client   *http.Client
	timeout  time.Duration
	headers  http.Header
}

func newGetter(upstream string, timeout time.Duration, headers http.Header) getter {
	return getter{
		upstream: upstream,
		timeout:  timeout,
		headers:  headers,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// get returns the response body of a 2xx response. Non-2xx statuses map to the sentinel errors.
func (g getter) get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		observability.RecordUpstreamCall(g.upstream, "error", start)
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range g.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		observability.RecordUpstreamCall(g.upstream, "error", start)
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.RecordUpstreamCall(g.upstream, statusLabel(resp.StatusCode), start)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(snippet) > 0 {
			return fmt.Errorf("%w: HTTP %d: %s", ErrUpstreamFailure, resp.StatusCode, snippet)
		}
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

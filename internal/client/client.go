package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	httpx "github.com/wolfeidau/tenantgate/internal/http"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds common client configuration
type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds every call, including reading the response body.
	Timeout time.Duration
}

// DefaultTimeout matches the gateway's default proxy timeout.
const DefaultTimeout = 10 * time.Second

// NewHTTPClient returns a client whose transport propagates trace context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// jsonClient performs JSON calls against a single base URL.
type jsonClient struct {
	cfg        Config
	httpClient *http.Client
	// headers are added to every request
	headers map[string]string
}

func (c *jsonClient) timeout() time.Duration {
	if c.cfg.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.cfg.Timeout
}

// do sends in as JSON and decodes a 2xx response into out. The call is
// bounded by the configured timeout; a deadline maps to
// apperr.ErrUpstreamTimeout and other transport failures to apperr.ErrUpstream.
// Error statuses are mapped with mapStatus.
func (c *jsonClient) do(ctx context.Context, method, path string, in, out any, mapStatus func(int) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transportError(ctx, method, path, err)
	}

	if sentinel := mapStatus(resp.StatusCode); sentinel != nil {
		var eb httpx.ErrorBody
		_ = json.Unmarshal(data, &eb)
		zerolog.Ctx(ctx).Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("upstream_error", eb.Error).
			Str("upstream_message", eb.Message).
			Msg("Upstream call failed")
		// only the sentinel travels on, the remote message may carry internal detail
		return sentinel
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: invalid response from %s %s: %w", apperr.ErrUpstream, method, path, err)
	}

	return nil
}

func transportError(ctx context.Context, method, path string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s", apperr.ErrUpstreamTimeout, method, path)
	}
	return fmt.Errorf("%w: %s %s: %w", apperr.ErrUpstream, method, path, err)
}

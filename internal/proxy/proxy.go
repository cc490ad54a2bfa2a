// Package proxy forwards authenticated requests to downstream services with
// the caller's resolved identity and a hard deadline.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/auth"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// APIPrefix is prepended to forwarded paths that do not already carry it.
	APIPrefix = "/api/v1"

	HeaderUserID   = "x-user-id"
	HeaderTenantID = "x-tenant-id"

	defaultContentType = "application/json"
)

// forwardedHeaders is the allow-list of caller headers passed downstream.
// Identity headers are never taken from the caller.
var forwardedHeaders = []string{"Content-Type", "Accept", "X-Request-Id"}

// timeoutBody is the response synthesized when the deadline passes.
var timeoutBody = []byte(`{"error":"upstream timeout"}`)

// Upstream is a downstream service and the internal token it expects.
type Upstream struct {
	Name    string
	BaseURL string
	Token   string
}

// Request is the inbound request to forward.
type Request struct {
	Method string
	// Path is the escaped request path, with or without the API prefix.
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.Reader
}

// Response is what the gateway writes back to the caller.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Proxy forwards requests over a shared HTTP client.
type Proxy struct {
	client *http.Client
}

// New creates a proxy. A nil client gets a traced transport.
func New(client *http.Client) *Proxy {
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Proxy{client: client}
}

// CheckPath returns apperr.ErrValidation unless the decoded path is canonical
// and sits under prefix. Dot segments and doubled slashes are refused rather
// than cleaned so the gateway and the upstream agree on the target.
func CheckPath(decoded, prefix string) error {
	if decoded != prefix && !strings.HasPrefix(decoded, prefix+"/") {
		return fmt.Errorf("%w: path outside %s", apperr.ErrValidation, prefix)
	}
	if path.Clean(decoded) != strings.TrimSuffix(decoded, "/") {
		return fmt.Errorf("%w: path is not canonical", apperr.ErrValidation)
	}
	return nil
}

// UpstreamURL builds the downstream URL from the escaped request path and the
// raw query. Escaped characters stay escaped so an encoded "?" or "/" can
// never become part of the query or add a segment.
func UpstreamURL(baseURL, escapedPath, rawQuery string) (string, error) {
	if !strings.HasPrefix(escapedPath, "/") {
		escapedPath = "/" + escapedPath
	}
	if escapedPath != APIPrefix && !strings.HasPrefix(escapedPath, APIPrefix+"/") {
		escapedPath = APIPrefix + escapedPath
	}

	decoded, err := url.PathUnescape(escapedPath)
	if err != nil {
		return "", fmt.Errorf("%w: invalid path encoding", apperr.ErrValidation)
	}
	if err := CheckPath(decoded, APIPrefix); err != nil {
		return "", err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid upstream url %q: %w", baseURL, err)
	}

	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + decoded
	u.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + escapedPath
	u.RawQuery = rawQuery
	u.Fragment = ""

	return u.String(), nil
}

// Forward sends req to upstream on behalf of identity and waits at most
// timeout for the complete response. When the deadline passes the upstream
// request is abandoned and a 504 response is returned with a nil error.
// Any other transport failure is apperr.ErrUpstream.
func (p *Proxy) Forward(ctx context.Context, req *Request, identity models.Identity, upstream Upstream, timeout time.Duration) (*Response, error) {
	if !identity.Valid() {
		return nil, fmt.Errorf("%w: missing identity", apperr.ErrAuthentication)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(
		attribute.String("upstream", upstream.Name),
		attribute.String("method", req.Method),
	)
	metrics.ProxyRequestsTotal.Add(ctx, 1, attrs)

	logger := zerolog.Ctx(ctx).With().
		Str("upstream", upstream.Name).
		Str("tenant_id", identity.TenantID.String()).
		Logger()

	target, err := UpstreamURL(upstream.BaseURL, req.Path, req.RawQuery)
	if err != nil {
		logger.Warn().Err(err).Msg("Refused upstream path")
		return nil, err
	}

	outReq, err := http.NewRequestWithContext(ctx, req.Method, target, req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}

	for _, name := range forwardedHeaders {
		if v := req.Header.Get(name); v != "" {
			outReq.Header.Set(name, v)
		}
	}
	if outReq.Header.Get("Content-Type") == "" {
		outReq.Header.Set("Content-Type", defaultContentType)
	}
	outReq.Header.Set(HeaderUserID, identity.UserID.String())
	outReq.Header.Set(HeaderTenantID, identity.TenantID.String())
	outReq.Header.Set(auth.InternalTokenHeader, upstream.Token)

	resp, body, err := p.do(outReq)
	metrics.ProxyDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ProxyTimeoutsTotal.Add(ctx, 1, attrs)
			logger.Warn().Dur("timeout", timeout).Msg("Upstream timed out")
			return &Response{
				StatusCode:  http.StatusGatewayTimeout,
				ContentType: defaultContentType,
				Body:        timeoutBody,
			}, nil
		}

		metrics.ProxyErrorsTotal.Add(ctx, 1, attrs)
		logger.Warn().Err(err).Msg("Upstream request failed")
		return nil, fmt.Errorf("%w: %s: %w", apperr.ErrUpstream, upstream.Name, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("Forwarded request")

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// do performs the request and reads the whole body while the deadline still applies.
func (p *Proxy) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upstream body: %w", err)
	}

	return resp, body, nil
}

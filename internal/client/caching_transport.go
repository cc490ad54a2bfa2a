package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control on
// responses. It is used to fetch the provider's JWKS document so a restart or
// an early key refresh is served from cache while the document is fresh.
func NewCachingHTTPClient(cacheDir string, timeout time.Duration) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		// disk-based cache survives restarts
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = otelhttp.NewTransport(http.DefaultTransport)

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

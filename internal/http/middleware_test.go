package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

// httptest.NewRequest uses 192.0.2.1:1234 as the peer.
var loadBalancer = netip.MustParsePrefix("192.0.2.0/24")

func captureIP(t *testing.T, mw func(http.Handler) http.Handler, r *http.Request) string {
	t.Helper()

	var captured string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ExtractClientIP(r)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	return captured
}

func TestClientIPMiddleware_trustedProxy(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		xri      string
		expected string
	}{
		{name: "single forwarded", xff: "198.51.100.7", expected: "198.51.100.7"},
		{name: "left-most of chain", xff: "203.0.113.1, 198.51.100.1", expected: "203.0.113.1"},
		{name: "chain with spaces", xff: "203.0.113.1  ,  198.51.100.1", expected: "203.0.113.1"},
		{name: "forwarded wins over real ip", xff: "203.0.113.1", xri: "198.51.100.9", expected: "203.0.113.1"},
		{name: "real ip only", xri: "198.51.100.9", expected: "198.51.100.9"},
		{name: "blank forwarded entry", xff: " ,198.51.100.1", expected: "192.0.2.1"},
		{name: "no headers", expected: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}

			require.Equal(t, tt.expected, captureIP(t, ClientIPMiddleware(loadBalancer), r))
		})
	}
}

func TestClientIPMiddleware_untrustedPeerIgnoresHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	r.Header.Set("X-Real-IP", "10.0.0.2")

	require.Equal(t, "192.0.2.1", captureIP(t, ClientIPMiddleware(), r))

	other := netip.MustParsePrefix("10.0.0.0/8")
	require.Equal(t, "192.0.2.1", captureIP(t, ClientIPMiddleware(other), r))
}

func TestExtractClientIP_remoteAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		expected   string
	}{
		{name: "IPv4 with port", remoteAddr: "192.168.1.1:54321", expected: "192.168.1.1"},
		{name: "IPv6 with port", remoteAddr: "[2001:db8::1]:54321", expected: "2001:db8::1"},
		{name: "no port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			r.Header.Set("X-Forwarded-For", "203.0.113.1")

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestClientIPMiddleware_ipv6TrustedPeer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::10]:443"
	r.Header.Set("X-Forwarded-For", "203.0.113.1")

	trusted := netip.MustParsePrefix("2001:db8::/32")
	require.Equal(t, "203.0.113.1", captureIP(t, ClientIPMiddleware(trusted), r))
}

func TestParsePrefixes(t *testing.T) {
	prefixes, err := ParsePrefixes([]string{"10.0.0.0/8", " 192.0.2.5 ", "", "2001:db8::1", "172.16.5.4/12"})
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.5/32"),
		netip.MustParsePrefix("2001:db8::1/128"),
		netip.MustParsePrefix("172.16.0.0/12"),
	}, prefixes)

	_, err = ParsePrefixes([]string{"not-an-ip"})
	require.ErrorContains(t, err, "invalid trusted proxy")

	_, err = ParsePrefixes([]string{"10.0.0.0/99"})
	require.Error(t, err)
}

func TestClientIPFromContext_missing(t *testing.T) {
	require.Empty(t, ClientIPFromContext(context.Background()))
}

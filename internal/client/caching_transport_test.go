package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCachingHTTPClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer srv.Close()

	for _, dir := range []string{"", t.TempDir()} {
		hits.Store(0)
		c := NewCachingHTTPClient(dir, time.Second)

		for range 3 {
			resp, err := c.Get(srv.URL + "/.well-known/jwks.json")
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			// the cache is populated once the body is drained
			_, err = io.ReadAll(resp.Body)
			require.NoError(t, err)
			_ = resp.Body.Close()
		}

		require.Equal(t, int32(1), hits.Load())
	}
}

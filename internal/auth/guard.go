package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"
	httpx "github.com/wolfeidau/tenantgate/internal/http"
)

// InternalTokenHeader carries the shared secret between internal services.
const InternalTokenHeader = "x-internal-token"

// InternalGuard admits callers presenting the shared internal secret.
type InternalGuard struct {
	secret []byte
}

// NewInternalGuard creates a guard for secret. An empty secret admits no one.
func NewInternalGuard(secret string) *InternalGuard {
	return &InternalGuard{secret: []byte(secret)}
}

// Allow reports whether the request headers carry the configured secret.
func (g *InternalGuard) Allow(h http.Header) bool {
	if len(g.secret) == 0 {
		return false
	}

	presented := h.Get(InternalTokenHeader)
	if presented == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(presented), g.secret) == 1
}

// Middleware rejects requests without the internal secret with 401.
func (g *InternalGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Allow(r.Header) {
				zerolog.Ctx(r.Context()).Warn().Msg("Rejected request without valid internal token")
				httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorBody{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

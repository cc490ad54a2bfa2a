// Package gateway is the public edge: it authenticates bearer tokens, resolves
// the caller's tenant and forwards the request to the owning service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/api"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/auth"
	httpx "github.com/wolfeidau/tenantgate/internal/http"
	"github.com/wolfeidau/tenantgate/internal/logger"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/proxy"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultProxyTimeout bounds each downstream call.
const DefaultProxyTimeout = 10 * time.Second

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.ExternalIdentity, error)
}

// EmailLookup returns the identity provider's current email for a subject.
type EmailLookup interface {
	UserEmail(ctx context.Context, externalUserID string) (string, error)
}

// Tenancy is the subset of the tenancy service the gateway calls.
type Tenancy interface {
	Resolve(ctx context.Context, ext models.ExternalIdentity, email string) (*models.Identity, error)
	RenameTenant(ctx context.Context, userID, tenantID uuid.UUID, name string) error
}

// Forwarder sends a request downstream on behalf of an identity.
type Forwarder interface {
	Forward(ctx context.Context, req *proxy.Request, identity models.Identity, upstream proxy.Upstream, timeout time.Duration) (*proxy.Response, error)
}

// Config configures the gateway.
type Config struct {
	ProxyTimeout   time.Duration
	Devices        proxy.Upstream
	Routes         []Route
	AllowedOrigins []string
	// TrustedProxies are the load balancers whose forwarded headers name the client.
	TrustedProxies []netip.Prefix
}

// Gateway serves the public API.
type Gateway struct {
	cfg       Config
	verifier  Verifier
	emails    EmailLookup
	tenancy   Tenancy
	forwarder Forwarder
}

// New creates a gateway.
func New(cfg Config, verifier Verifier, emails EmailLookup, tenancy Tenancy, forwarder Forwarder) *Gateway {
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = DefaultProxyTimeout
	}

	return &Gateway{
		cfg:       cfg,
		verifier:  verifier,
		emails:    emails,
		tenancy:   tenancy,
		forwarder: forwarder,
	}
}

// Handler returns the HTTP handler for the gateway.
func (g *Gateway) Handler(log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httpx.ClientIPMiddleware(g.cfg.TrustedProxies...))
	r.Use(logger.RequestLogger(log, httpx.ExtractClientIP))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, api.OKResponse{OK: true})
	})

	g.mount(r, DevicesPrefix, g.cfg.Devices)
	for _, route := range g.cfg.Routes {
		g.mount(r, route.Prefix, route.Upstream)
	}

	r.Patch("/api/v1/tenants/{tenantId}", g.renameTenant)

	return otelhttp.NewHandler(g.withCORS(r), "gateway")
}

func (g *Gateway) mount(r chi.Router, prefix string, upstream proxy.Upstream) {
	h := g.proxyHandler(prefix, upstream)
	r.Handle(prefix, h)
	r.Handle(prefix+"/*", h)
}

func (g *Gateway) withCORS(h http.Handler) http.Handler {
	if len(g.cfg.AllowedOrigins) == 0 {
		return h
	}

	return cors.New(cors.Options{
		AllowedOrigins: g.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
	}).Handler(h)
}

// authenticate verifies the bearer token and resolves the caller's internal
// identity. The identity is returned to the caller rather than stored on the
// request.
func (g *Gateway) authenticate(r *http.Request) (*models.Identity, error) {
	ctx := r.Context()

	token := auth.BearerToken(r)
	if token == "" {
		return nil, g.authFailure(ctx, fmt.Errorf("%w: missing bearer token", apperr.ErrAuthentication))
	}

	ext, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, g.authFailure(ctx, err)
	}

	email, err := g.emails.UserEmail(ctx, ext.ExternalUserID)
	if err != nil {
		return nil, g.authFailure(ctx, err)
	}

	identity, err := g.tenancy.Resolve(ctx, *ext, email)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("user_id", identity.UserID.String()).
		Str("tenant_id", identity.TenantID.String()).
		Msg("Resolved identity")

	return identity, nil
}

func (g *Gateway) authFailure(ctx context.Context, err error) error {
	if errors.Is(err, apperr.ErrAuthentication) {
		telemetry.GetMetrics().AuthFailuresTotal.Add(ctx, 1)
		zerolog.Ctx(ctx).Info().Err(err).Msg("Authentication failed")
	}
	return err
}

func (g *Gateway) proxyHandler(prefix string, upstream proxy.Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// chi matches on the escaped path, so dot segments arrive here intact
		if err := proxy.CheckPath(r.URL.Path, prefix); err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		identity, err := g.authenticate(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		if tenantID, err := tenantInPath(r.URL.Path); err == nil && tenantID != identity.TenantID.String() {
			zerolog.Ctx(r.Context()).Warn().
				Str("tenant_id", identity.TenantID.String()).
				Str("path_tenant_id", tenantID).
				Msg("Rejected cross-tenant request")
			httpx.WriteJSON(w, http.StatusForbidden, httpx.ErrorBody{Error: "forbidden"})
			return
		}

		var body io.Reader
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			body = r.Body
		}

		resp, err := g.forwarder.Forward(r.Context(), &proxy.Request{
			Method:   r.Method,
			Path:     r.URL.EscapedPath(),
			RawQuery: r.URL.RawQuery,
			Header:   r.Header,
			Body:     body,
		}, *identity, upstream, g.cfg.ProxyTimeout)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", resp.ContentType)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}

func (g *Gateway) renameTenant(w http.ResponseWriter, r *http.Request) {
	identity, err := g.authenticate(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	if chi.URLParam(r, "tenantId") != identity.TenantID.String() {
		httpx.WriteJSON(w, http.StatusForbidden, httpx.ErrorBody{Error: "forbidden"})
		return
	}

	var req api.UpdateTenantRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		httpx.WriteError(w, r, fmt.Errorf("%w: name is required", apperr.ErrValidation))
		return
	}

	if err := g.tenancy.RenameTenant(r.Context(), identity.UserID, identity.TenantID, req.Name); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

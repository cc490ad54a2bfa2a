package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/auth"
	httpx "github.com/wolfeidau/tenantgate/internal/http"
	"github.com/wolfeidau/tenantgate/internal/identity"
	"github.com/wolfeidau/tenantgate/internal/logger"
	"github.com/wolfeidau/tenantgate/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger is implemented by stores that can report database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the HTTP server and identity services
type Server struct {
	store      store.IdentityStore
	resolver   *identity.Resolver
	authorizer *identity.Authorizer
	directory  *identity.Directory
	guard      *auth.InternalGuard
}

// NewServer creates a tenancy server over st admitting callers that present internalToken.
func NewServer(st store.IdentityStore, internalToken string) *Server {
	return &Server{
		store:      st,
		resolver:   identity.NewResolver(st),
		authorizer: identity.NewAuthorizer(st),
		directory:  identity.NewDirectory(st),
		guard:      auth.NewInternalGuard(internalToken),
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httpx.ClientIPMiddleware())
	r.Use(logger.RequestLogger(log, httpx.ExtractClientIP))
	r.Use(middleware.Recoverer)

	// Health check endpoint for load balancer
	r.Get("/health", s.health)

	r.Route("/internal", func(r chi.Router) {
		r.Use(s.guard.Middleware())

		r.Post("/resolve", s.resolve)
		r.Get("/user-email/{userId}", s.userEmail)
		r.Get("/tenants/{tenantId}", s.getTenant)
		r.Patch("/tenants/{tenantId}/name", s.renameTenant)
	})

	return otelhttp.NewHandler(r, "tenancy")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Health check failed")
			httpx.WriteJSON(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "unavailable"})
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/auth"
	"github.com/wolfeidau/tenantgate/internal/client"
	"github.com/wolfeidau/tenantgate/internal/gateway"
	httpx "github.com/wolfeidau/tenantgate/internal/http"
	"github.com/wolfeidau/tenantgate/internal/proxy"
)

type GatewayCmd struct {
	// Server configuration
	Listen       string `help:"HTTP server listen address" default:"0.0.0.0:4000" env:"GATEWAY_LISTEN"`
	ProxyTimeout int    `help:"downstream timeout in milliseconds" default:"10000" env:"PROXY_TIMEOUT_MS"`

	TrustedProxies []string `help:"CIDRs of proxies allowed to set X-Forwarded-For" env:"GATEWAY_TRUSTED_PROXIES"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins" default:"http://localhost:5173" env:"GATEWAY_CORS_ORIGINS"`

	// Identity provider configuration
	Issuer        string `help:"expected token issuer" env:"CLERK_JWT_ISSUER"`
	JWKSURL       string `help:"JWKS endpoint, defaults to <issuer>/.well-known/jwks.json" env:"CLERK_JWKS_URL"`
	PublicKeyFile string `help:"PEM public key used instead of JWKS" type:"existingfile" env:"CLERK_JWT_PUBLIC_KEY_FILE"`
	SecretKey     string `help:"identity provider backend API key" env:"CLERK_SECRET_KEY"`
	ProviderURL   string `help:"identity provider backend API URL" default:"https://api.clerk.com" env:"CLERK_API_URL"`
	CacheDir      string `help:"directory for the HTTP cache of JWKS responses, in memory when empty" env:"GATEWAY_CACHE_DIR"`

	// Downstream services
	TenancyURL   string `help:"tenancy service base URL" default:"http://localhost:4001" env:"TENANCY_SERVICE_URL"`
	TenancyToken string `help:"tenancy service internal token" env:"TENANCY_SERVICE_TOKEN"`
	DeviceURL    string `help:"device service base URL" default:"http://localhost:4002" env:"DEVICE_SERVICE_URL"`
	DeviceToken  string `help:"device service internal token" env:"DEVICE_SERVICE_TOKEN"`
	RoutesFile   string `help:"YAML file with additional proxied routes" type:"existingfile" env:"GATEWAY_ROUTES_FILE"`

	Tracing TracingFlags `embed:""`
}

func (c *GatewayCmd) Validate() error {
	if c.Issuer == "" {
		return errors.New("token issuer is required (--issuer or CLERK_JWT_ISSUER)")
	}
	if c.SecretKey == "" {
		return errors.New("identity provider secret key is required (--secret-key or CLERK_SECRET_KEY)")
	}
	if c.TenancyToken == "" || c.DeviceToken == "" {
		return errors.New("internal tokens are required (TENANCY_SERVICE_TOKEN and DEVICE_SERVICE_TOKEN)")
	}
	if c.ProxyTimeout <= 0 {
		return errors.New("proxy timeout must be positive")
	}
	return nil
}

func (c *GatewayCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting gateway")

	defer initTracing(ctx, log, c.Tracing, "tenantgate-gateway", globals.Version)()

	timeout := time.Duration(c.ProxyTimeout) * time.Millisecond

	keys, err := c.keySource(log, timeout)
	if err != nil {
		return err
	}

	verifier, err := auth.NewTokenVerifier(c.Issuer, keys)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	trusted, err := httpx.ParsePrefixes(c.TrustedProxies)
	if err != nil {
		return err
	}

	var routes []gateway.Route
	if c.RoutesFile != "" {
		routes, err = gateway.LoadRoutes(c.RoutesFile)
		if err != nil {
			return err
		}
		for _, r := range routes {
			log.Info().Str("prefix", r.Prefix).Str("upstream", r.Upstream.Name).Msg("Registered route")
		}
	}

	httpClient := client.NewHTTPClient()

	emails := client.NewProviderClient(client.Config{
		BaseURL: c.ProviderURL,
		Token:   c.SecretKey,
		Timeout: timeout,
	}, httpClient)

	tenancy := client.NewTenancyClient(client.Config{
		BaseURL: c.TenancyURL,
		Token:   c.TenancyToken,
		Timeout: timeout,
	}, httpClient)

	gw := gateway.New(gateway.Config{
		ProxyTimeout: timeout,
		Devices: proxy.Upstream{
			Name:    "devices",
			BaseURL: c.DeviceURL,
			Token:   c.DeviceToken,
		},
		Routes:         routes,
		AllowedOrigins: c.CORSOrigins,
		TrustedProxies: trusted,
	}, verifier, emails, tenancy, proxy.New(httpClient))

	return serve(ctx, log, configureHTTPServer(c.Listen, gw.Handler(log)))
}

func (c *GatewayCmd) keySource(log zerolog.Logger, timeout time.Duration) (auth.KeySource, error) {
	if c.PublicKeyFile != "" {
		pem, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		keys, err := auth.NewStaticKeySource(string(pem))
		if err != nil {
			return nil, fmt.Errorf("failed to load public key: %w", err)
		}
		log.Info().Str("kid", keys.Kid()).Msg("Verifying tokens with a static public key")
		return keys, nil
	}

	jwksURL := c.JWKSURL
	if jwksURL == "" {
		jwksURL = auth.JWKSURL(c.Issuer)
	}
	log.Info().Str("jwks_url", jwksURL).Msg("Verifying tokens with JWKS")

	return auth.NewJWKSKeySource(jwksURL, client.NewCachingHTTPClient(c.CacheDir, timeout)), nil
}

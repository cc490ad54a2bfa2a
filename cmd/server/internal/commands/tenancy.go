package commands

import (
	"context"
	"errors"

	"github.com/wolfeidau/tenantgate/internal/server"
)

type TenancyCmd struct {
	Listen        string `help:"HTTP server listen address" default:"0.0.0.0:4001" env:"TENANCY_LISTEN"`
	InternalToken string `help:"shared secret callers must present in x-internal-token" env:"INTERNAL_TOKEN"`

	Tracing TracingFlags `embed:""`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"TENANTGATE_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *TenancyCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting tenancy service")

	if c.InternalToken == "" {
		return errors.New("internal token is required (--internal-token or INTERNAL_TOKEN)")
	}

	defer initTracing(ctx, log, c.Tracing, "tenantgate-tenancy", globals.Version)()

	st, closeStore, err := openStore(ctx, log, c.StoreType, c.PostgresStore)
	if err != nil {
		return err
	}
	defer closeStore()

	handler := server.NewServer(st, c.InternalToken).Handler(log)

	return serve(ctx, log, configureHTTPServer(c.Listen, handler))
}

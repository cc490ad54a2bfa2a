package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/logger"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Globals struct {
	Debug   bool
	Version string
}

// setupLogger configures the process logger, packages logging through the
// global logger included.
func setupLogger(globals *Globals) zerolog.Logger {
	l := logger.Setup(globals.Debug)
	zlog.Logger = l
	return l
}

// TracingFlags enable OTLP export of traces and metrics.
type TracingFlags struct {
	Enabled     bool    `name:"tracing" help:"enable tracing" default:"false" env:"TENANTGATE_TRACING"`
	SampleRatio float64 `name:"tracing-sample-ratio" help:"fraction of root traces sampled" default:"1" env:"TENANTGATE_TRACING_SAMPLE_RATIO"`
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// initTracing starts telemetry when enabled and returns a func that flushes it.
func initTracing(ctx context.Context, log zerolog.Logger, flags TracingFlags, serviceName, version string) func() {
	if !flags.Enabled {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: serviceName,
		Version:     version,
		SampleRatio: flags.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// serve runs srv until SIGINT or SIGTERM, then drains in-flight requests.
func serve(ctx context.Context, log zerolog.Logger, srv *http.Server) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/store"
	memorystore "github.com/wolfeidau/tenantgate/internal/store/memory"
	postgresstore "github.com/wolfeidau/tenantgate/internal/store/postgres"
)

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Store Configuration
	QueryTimeout int32 `help:"transaction timeout in seconds" default:"10" env:"TENANTGATE_POSTGRES_QUERY_TIMEOUT"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
	StartupRetry    int32 `help:"seconds to keep retrying the database at startup" default:"30" env:"TENANTGATE_POSTGRES_STARTUP_RETRY"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"TENANTGATE_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:          s.ConnString,
		MaxConns:            s.MaxConns,
		MinConns:            s.MinConns,
		MaxConnLifetime:     s.MaxConnLifetime,
		MaxConnIdleTime:     s.MaxConnIdleTime,
		StartupRetrySeconds: s.StartupRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// openStore returns the identity store and a func releasing its resources.
func openStore(ctx context.Context, log zerolog.Logger, storeType string, flags PostgresStoreFlags) (store.IdentityStore, func(), error) {
	switch storeType {
	case "postgres":
		pool, err := flags.newPool(ctx)
		if err != nil {
			return nil, nil, err
		}

		st, err := postgresstore.NewIdentityStore(ctx, pool, &postgresstore.IdentityStoreConfig{
			QueryTimeoutSeconds: flags.QueryTimeout,
			AutoMigrate:         flags.AutoMigrate,
		})
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to create identity store: %w", err)
		}

		log.Info().Bool("auto_migrate", flags.AutoMigrate).Msg("Using PostgreSQL identity store")
		return st, pool.Close, nil

	default:
		log.Warn().Msg("Using in-memory identity store, state is lost on restart")
		return memorystore.NewIdentityStore(), func() {}, nil
	}
}

package postgres

import (
	"fmt"
	"time"
)

// IdentityStoreConfig holds store-specific configuration for the PostgreSQL identity store.
// Pool configuration is handled separately via PoolConfig.
type IdentityStoreConfig struct {
	// QueryTimeoutSeconds bounds a whole transaction, including the time spent
	// waiting on a concurrent insert of the same link.
	// Default: 10 seconds
	QueryTimeoutSeconds int32

	// AutoMigrate applies pending migrations when the store is created.
	AutoMigrate bool
}

// Validate checks that the configuration is valid.
func (c *IdentityStoreConfig) Validate() error {
	if c.QueryTimeoutSeconds < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *IdentityStoreConfig) ApplyDefaults() {
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10
	}
}

func (c *IdentityStoreConfig) queryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

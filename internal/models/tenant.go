package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an isolated customer account. Tenants are owned collectively
// by their members and are only mutated through an authorized rename.
type Tenant struct {
	TenantID  uuid.UUID // UUIDv7
	Name      string    // globally unique
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExternalTenantLink maps an identity provider organization to a Tenant.
// Unique on (Provider, ExternalOrgID).
type ExternalTenantLink struct {
	Provider      string
	ExternalOrgID string
	TenantID      uuid.UUID
}

// DefaultTenantName is the name given to a tenant provisioned for an external organization.
func DefaultTenantName(externalOrgID string) string {
	return "tenant-" + externalOrgID
}

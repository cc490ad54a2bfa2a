package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the role a user holds within a tenant.
type Role string

const (
	RoleOwner  Role = "owner"  // created the tenant, may rename it
	RoleMember Role = "member" // joined an existing tenant
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleMember
}

// Membership grants a User a role within a Tenant.
// There is exactly one membership per (TenantID, UserID) pair.
type Membership struct {
	MembershipID uuid.UUID // UUIDv7
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Role         Role
	CreatedAt    time.Time
}

// IsOwner returns true if the membership carries the owner role.
func (m *Membership) IsOwner() bool {
	return m.Role == RoleOwner
}

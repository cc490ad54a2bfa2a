package models

import "github.com/google/uuid"

// ProviderClerk is the only identity provider currently linked.
const ProviderClerk = "clerk"

// ExternalIdentity is the verified (subject, organization) pair extracted from a
// provider issued bearer token.
type ExternalIdentity struct {
	ExternalUserID string
	ExternalOrgID  string
}

// Identity is the internal identity a request acts as once resolved.
// It is passed explicitly to anything that needs tenant scoping.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// Valid returns true if both ids are set.
func (i Identity) Valid() bool {
	return i.UserID != uuid.Nil && i.TenantID != uuid.Nil
}

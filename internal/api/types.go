// Package api holds the JSON bodies exchanged between the gateway and the
// tenancy service.
package api

import "time"

// ResolveRequest is the body of POST /internal/resolve.
type ResolveRequest struct {
	ClerkUserID string `json:"clerkUserId"`
	ClerkOrgID  string `json:"clerkOrgId"`
	Email       string `json:"email"`
}

// ResolveResponse carries the internal identity.
type ResolveResponse struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
}

// RenameTenantRequest is the body of PATCH /internal/tenants/{tenantId}/name.
type RenameTenantRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// UpdateTenantRequest is the public body of PATCH /api/v1/tenants/{tenantId}.
type UpdateTenantRequest struct {
	Name string `json:"name"`
}

// UserEmailResponse is the body of GET /internal/user-email/{userId}.
// Email is null when the user is unknown.
type UserEmailResponse struct {
	Email *string `json:"email"`
}

// TenantResponse is the body of GET /internal/tenants/{tenantId}.
type TenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OKResponse acknowledges a command or health check.
type OKResponse struct {
	OK bool `json:"ok"`
}

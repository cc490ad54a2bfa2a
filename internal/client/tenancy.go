package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/api"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/auth"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// TenancyClient calls the tenancy service's internal API.
type TenancyClient struct {
	jc *jsonClient
}

// NewTenancyClient creates a client for the tenancy service at cfg.BaseURL
// authenticating with cfg.Token.
func NewTenancyClient(cfg Config, httpClient *http.Client) *TenancyClient {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	return &TenancyClient{
		jc: &jsonClient{
			cfg:        cfg,
			httpClient: httpClient,
			headers:    map[string]string{auth.InternalTokenHeader: cfg.Token},
		},
	}
}

// tenancyStatus maps tenancy service statuses back to the error taxonomy.
// A 401 means this gateway holds the wrong internal token, which callers
// cannot fix, so it is reported as an upstream failure. Any 5xx is too.
func tenancyStatus(status int) error {
	if status == http.StatusUnauthorized || (status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout) {
		return apperr.ErrUpstream
	}
	return apperr.FromStatus(status)
}

// Resolve maps the external identity onto internal ids, provisioning them on first contact.
func (c *TenancyClient) Resolve(ctx context.Context, ext models.ExternalIdentity, email string) (*models.Identity, error) {
	var out api.ResolveResponse
	err := c.jc.do(ctx, http.MethodPost, "/internal/resolve", api.ResolveRequest{
		ClerkUserID: ext.ExternalUserID,
		ClerkOrgID:  ext.ExternalOrgID,
		Email:       email,
	}, &out, tenancyStatus)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(out.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id in resolve response", apperr.ErrUpstream)
	}

	tenantID, err := uuid.Parse(out.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id in resolve response", apperr.ErrUpstream)
	}

	return &models.Identity{UserID: userID, TenantID: tenantID}, nil
}

// RenameTenant asks the tenancy service to rename tenantID on behalf of userID.
func (c *TenancyClient) RenameTenant(ctx context.Context, userID, tenantID uuid.UUID, name string) error {
	path := fmt.Sprintf("/internal/tenants/%s/name", url.PathEscape(tenantID.String()))

	var out api.OKResponse
	return c.jc.do(ctx, http.MethodPatch, path, api.RenameTenantRequest{
		UserID: userID.String(),
		Name:   name,
	}, &out, tenancyStatus)
}

// UserEmail returns the stored email for userID. found is false for unknown users.
func (c *TenancyClient) UserEmail(ctx context.Context, userID uuid.UUID) (email string, found bool, err error) {
	var out api.UserEmailResponse
	err = c.jc.do(ctx, http.MethodGet, "/internal/user-email/"+url.PathEscape(userID.String()), nil, &out, tenancyStatus)
	if err != nil {
		return "", false, err
	}

	if out.Email == nil {
		return "", false, nil
	}
	return *out.Email, true, nil
}

// Tenant fetches a tenant by id.
func (c *TenancyClient) Tenant(ctx context.Context, tenantID uuid.UUID) (*api.TenantResponse, error) {
	var out api.TenantResponse
	err := c.jc.do(ctx, http.MethodGet, "/internal/tenants/"+url.PathEscape(tenantID.String()), nil, &out, tenancyStatus)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/api"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// ResolveCmd resolves a provider identity the way the gateway does.
type ResolveCmd struct {
	TenancyFlags `embed:""`

	User  string `help:"provider user id" required:""`
	Org   string `help:"provider organization id" required:""`
	Email string `help:"email address" required:""`
}

func (c *ResolveCmd) Run(ctx context.Context) error {
	identity, err := c.client().Resolve(ctx, models.ExternalIdentity{
		ExternalUserID: c.User,
		ExternalOrgID:  c.Org,
	}, c.Email)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}

	return printJSON(os.Stdout, api.ResolveResponse{
		UserID:   identity.UserID.String(),
		TenantID: identity.TenantID.String(),
	})
}

// TenantCmd shows a tenant.
type TenantCmd struct {
	TenancyFlags `embed:""`

	ID uuid.UUID `arg:"" help:"tenant id"`
}

func (c *TenantCmd) Run(ctx context.Context) error {
	tenant, err := c.client().Tenant(ctx, c.ID)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, tenant)
}

// RenameCmd renames a tenant on behalf of one of its owners.
type RenameCmd struct {
	TenancyFlags `embed:""`

	ID   uuid.UUID `arg:"" help:"tenant id"`
	Name string    `arg:"" help:"new display name"`
	User uuid.UUID `help:"acting user id" required:""`
}

func (c *RenameCmd) Run(ctx context.Context) error {
	if err := c.client().RenameTenant(ctx, c.User, c.ID, c.Name); err != nil {
		return err
	}
	return printJSON(os.Stdout, api.OKResponse{OK: true})
}

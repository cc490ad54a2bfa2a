package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
)

// maxTenantNameLength matches the tenants.name column width.
const maxTenantNameLength = 128

// RenameCommand requests a new display name for a tenant on behalf of a user.
type RenameCommand struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Name     string
}

// Validate checks that every field is set and the name fits.
func (c RenameCommand) Validate() error {
	if c.UserID == uuid.Nil || c.TenantID == uuid.Nil {
		return fmt.Errorf("%w: missing tenant update fields", apperr.ErrValidation)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxTenantNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", apperr.ErrValidation, maxTenantNameLength)
	}
	return nil
}

// Authorizer guards tenant level mutations. Only owners may rename a tenant.
type Authorizer struct {
	store store.IdentityStore
}

// NewAuthorizer creates an authorizer backed by st.
func NewAuthorizer(st store.IdentityStore) *Authorizer {
	return &Authorizer{store: st}
}

// AuthorizeRename returns apperr.ErrAuthorization unless userID holds the owner
// role on tenantID.
func (a *Authorizer) AuthorizeRename(ctx context.Context, userID, tenantID uuid.UUID) error {
	return a.store.WithTransaction(ctx, func(tx store.IdentityTx) error {
		return authorizeOwner(ctx, tx, userID, tenantID)
	})
}

// RenameTenant validates the command, checks ownership and applies the new name
// in a single transaction, so a role read and the update cannot interleave with
// another writer.
func (a *Authorizer) RenameTenant(ctx context.Context, cmd RenameCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	name := strings.TrimSpace(cmd.Name)

	err := a.store.WithTransaction(ctx, func(tx store.IdentityTx) error {
		if _, err := tx.GetTenant(ctx, cmd.TenantID); err != nil {
			return err
		}
		if err := authorizeOwner(ctx, tx, cmd.UserID, cmd.TenantID); err != nil {
			return err
		}
		return tx.UpdateTenantName(ctx, cmd.TenantID, name)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrAuthorization) {
			zerolog.Ctx(ctx).Warn().
				Str("user_id", cmd.UserID.String()).
				Str("tenant_id", cmd.TenantID.String()).
				Msg("Rejected tenant rename by non-owner")
			return err
		}
		return mapStoreError(ctx, err)
	}

	telemetry.GetMetrics().TenantRenamesTotal.Add(ctx, 1)

	zerolog.Ctx(ctx).Info().
		Str("tenant_id", cmd.TenantID.String()).
		Str("name", name).
		Msg("Renamed tenant")

	return nil
}

func authorizeOwner(ctx context.Context, tx store.IdentityTx, userID, tenantID uuid.UUID) error {
	membership, err := tx.GetMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return fmt.Errorf("%w: user is not a member of the tenant", apperr.ErrAuthorization)
		}
		return fmt.Errorf("failed to get membership: %w", err)
	}

	if membership.Role != models.RoleOwner {
		return fmt.Errorf("%w: only owners may rename a tenant", apperr.ErrAuthorization)
	}

	return nil
}

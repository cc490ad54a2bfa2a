// Package identity maps identity provider subjects and organizations onto
// internal users and tenants, provisioning them on first contact, and decides
// who may mutate a tenant.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
)

// ResolveCommand carries the verified external identity and the email the
// provider currently reports for the subject.
type ResolveCommand struct {
	ExternalUserID string
	ExternalOrgID  string
	Email          string
}

const (
	maxEmailLength      = 256
	maxExternalIDLength = 256
)

// Validate checks that every field is present, fits its column and the email
// is an address. The org id also has to leave room for the default tenant name.
func (c ResolveCommand) Validate() error {
	if c.ExternalUserID == "" || c.ExternalOrgID == "" || c.Email == "" {
		return fmt.Errorf("%w: missing external ids or email", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(c.ExternalUserID) > maxExternalIDLength {
		return fmt.Errorf("%w: external user id must be at most %d characters", apperr.ErrValidation, maxExternalIDLength)
	}
	if utf8.RuneCountInString(models.DefaultTenantName(c.ExternalOrgID)) > maxTenantNameLength {
		return fmt.Errorf("%w: external org id is too long", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(c.Email) > maxEmailLength {
		return fmt.Errorf("%w: email must be at most %d characters", apperr.ErrValidation, maxEmailLength)
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("%w: invalid email", apperr.ErrValidation)
	}
	return nil
}

// Resolver performs just-in-time provisioning of tenants, users and memberships.
type Resolver struct {
	store    store.IdentityStore
	provider string
	now      func() time.Time
}

// NewResolver creates a resolver for identities issued by the default provider.
func NewResolver(st store.IdentityStore) *Resolver {
	return &Resolver{
		store:    st,
		provider: models.ProviderClerk,
		now:      time.Now,
	}
}

// Resolve returns the stable internal identity for the external (user, org)
// pair, creating the tenant, user and membership rows that do not exist yet.
//
// The whole sequence runs in one transaction. Once started it is not cancelled
// by the caller going away; it is bounded by the store's own timeout.
func (r *Resolver) Resolve(ctx context.Context, cmd ResolveCommand) (*models.Identity, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx)
	txCtx := context.WithoutCancel(ctx)

	var (
		identity  models.Identity
		newTenant bool
		newUser   bool
	)

	err := r.store.WithTransaction(txCtx, func(tx store.IdentityTx) error {
		tenantID, created, err := r.resolveTenant(txCtx, tx, cmd.ExternalOrgID)
		if err != nil {
			return err
		}
		newTenant = created

		userID, created, err := r.resolveUser(txCtx, tx, cmd.ExternalUserID, cmd.Email)
		if err != nil {
			return err
		}
		newUser = created

		role := models.RoleMember
		if newTenant {
			role = models.RoleOwner
		}

		res, err := tx.InsertMembership(txCtx, &models.Membership{
			MembershipID: uuid.Must(uuid.NewV7()),
			TenantID:     tenantID,
			UserID:       userID,
			Role:         role,
			CreatedAt:    r.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
		if res == store.AlreadyExists {
			logger.Debug().
				Str("tenant_id", tenantID.String()).
				Str("user_id", userID.String()).
				Msg("Membership already exists")
		}

		identity = models.Identity{UserID: userID, TenantID: tenantID}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(ctx, err)
	}

	metrics := telemetry.GetMetrics()
	metrics.IdentityResolvesTotal.Add(ctx, 1)
	if newTenant {
		metrics.TenantsProvisionedTotal.Add(ctx, 1)
		logger.Info().
			Str("tenant_id", identity.TenantID.String()).
			Str("external_org_id", cmd.ExternalOrgID).
			Msg("Provisioned tenant")
	}
	if newUser {
		metrics.UsersProvisionedTotal.Add(ctx, 1)
		logger.Info().
			Str("user_id", identity.UserID.String()).
			Str("tenant_id", identity.TenantID.String()).
			Msg("Provisioned user")
	}

	return &identity, nil
}

// resolveTenant returns the tenant linked to the organization, creating it if
// needed. created is true only for the transaction that won the link.
func (r *Resolver) resolveTenant(ctx context.Context, tx store.IdentityTx, externalOrgID string) (uuid.UUID, bool, error) {
	link, err := tx.GetTenantLink(ctx, r.provider, externalOrgID)
	if err == nil {
		return link.TenantID, false, nil
	}
	if !errors.Is(err, store.ErrLinkNotFound) {
		return uuid.Nil, false, fmt.Errorf("failed to get tenant link: %w", err)
	}

	now := r.now()
	tenant := &models.Tenant{
		TenantID:  uuid.Must(uuid.NewV7()),
		Name:      models.DefaultTenantName(externalOrgID),
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := tx.CreateTenantWithLink(ctx, &models.ExternalTenantLink{
		Provider:      r.provider,
		ExternalOrgID: externalOrgID,
		TenantID:      tenant.TenantID,
	}, tenant)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create tenant: %w", err)
	}
	if res == store.Inserted {
		return tenant.TenantID, true, nil
	}

	// lost the race, the winner's link is committed and visible now
	link, err = tx.GetTenantLink(ctx, r.provider, externalOrgID)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			return uuid.Nil, false, fmt.Errorf("%w: tenant link for %s vanished after conflict", store.ErrTxConflict, externalOrgID)
		}
		return uuid.Nil, false, fmt.Errorf("failed to re-read tenant link: %w", err)
	}

	return link.TenantID, false, nil
}

// resolveUser returns the user linked to the subject, creating it if needed.
// An existing user's email is updated to the latest reported value.
func (r *Resolver) resolveUser(ctx context.Context, tx store.IdentityTx, externalUserID, email string) (uuid.UUID, bool, error) {
	link, err := tx.GetUserLink(ctx, r.provider, externalUserID)
	switch {
	case err == nil:
		if err := tx.UpdateUserEmail(ctx, link.UserID, email); err != nil {
			return uuid.Nil, false, fmt.Errorf("failed to update user email: %w", err)
		}
		return link.UserID, false, nil
	case !errors.Is(err, store.ErrLinkNotFound):
		return uuid.Nil, false, fmt.Errorf("failed to get user link: %w", err)
	}

	now := r.now()
	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := tx.CreateUserWithLink(ctx, &models.ExternalUserLink{
		Provider:       r.provider,
		ExternalUserID: externalUserID,
		UserID:         user.UserID,
	}, user)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	if res == store.Inserted {
		return user.UserID, true, nil
	}

	link, err = tx.GetUserLink(ctx, r.provider, externalUserID)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			return uuid.Nil, false, fmt.Errorf("%w: user link for %s vanished after conflict", store.ErrTxConflict, externalUserID)
		}
		return uuid.Nil, false, fmt.Errorf("failed to re-read user link: %w", err)
	}

	if err := tx.UpdateUserEmail(ctx, link.UserID, email); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to update user email: %w", err)
	}

	return link.UserID, false, nil
}

// mapStoreError translates store sentinels into the application error taxonomy.
// Database detail stays in the log, the returned message is safe to show callers.
func mapStoreError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrTxConflict):
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Transaction conflict")
		return fmt.Errorf("%w: concurrent update, retry the request", apperr.ErrConflict)
	case errors.Is(err, store.ErrValueTooLong):
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Value exceeds column width")
		return fmt.Errorf("%w: value too long", apperr.ErrValidation)
	case errors.Is(err, store.ErrEmailTaken):
		return fmt.Errorf("%w: email already belongs to another user", apperr.ErrConflict)
	case errors.Is(err, store.ErrTenantNameTaken):
		return fmt.Errorf("%w: tenant name already taken", apperr.ErrConflict)
	case errors.Is(err, store.ErrTenantNotFound):
		return fmt.Errorf("%w: tenant", apperr.ErrNotFound)
	case errors.Is(err, store.ErrUserNotFound):
		return fmt.Errorf("%w: user", apperr.ErrNotFound)
	default:
		return err
	}
}

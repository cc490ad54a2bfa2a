package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// Directory provides read access to provisioned users and tenants.
type Directory struct {
	store store.IdentityStore
}

// NewDirectory creates a directory backed by st.
func NewDirectory(st store.IdentityStore) *Directory {
	return &Directory{store: st}
}

// UserEmail returns the user's current email. found is false if the user is unknown.
func (d *Directory) UserEmail(ctx context.Context, userID uuid.UUID) (email string, found bool, err error) {
	err = d.store.WithTransaction(ctx, func(tx store.IdentityTx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		email = user.Email
		return nil
	})
	if errors.Is(err, store.ErrUserNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return email, true, nil
}

// Tenant returns the tenant by id.
func (d *Directory) Tenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	var tenant *models.Tenant
	err := d.store.WithTransaction(ctx, func(tx store.IdentityTx) error {
		var err error
		tenant, err = tx.GetTenant(ctx, tenantID)
		return err
	})
	if err != nil {
		return nil, mapStoreError(ctx, err)
	}
	return tenant, nil
}

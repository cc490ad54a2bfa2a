package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store/memory"
)

func setupTenant(t *testing.T) (*memory.IdentityStore, *models.Identity, *models.Identity) {
	t.Helper()

	st := memory.NewIdentityStore()
	r := NewResolver(st)

	owner, err := r.Resolve(context.Background(), ResolveCommand{ExternalUserID: "user_owner", ExternalOrgID: "org_1", Email: "owner@example.com"})
	require.NoError(t, err)

	member, err := r.Resolve(context.Background(), ResolveCommand{ExternalUserID: "user_member", ExternalOrgID: "org_1", Email: "member@example.com"})
	require.NoError(t, err)

	return st, owner, member
}

func TestRenameCommand_Validate(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	tests := []struct {
		name    string
		cmd     RenameCommand
		wantErr bool
	}{
		{name: "valid", cmd: RenameCommand{UserID: id, TenantID: id, Name: "Acme"}},
		{name: "missing user", cmd: RenameCommand{TenantID: id, Name: "Acme"}, wantErr: true},
		{name: "missing tenant", cmd: RenameCommand{UserID: id, Name: "Acme"}, wantErr: true},
		{name: "blank name", cmd: RenameCommand{UserID: id, TenantID: id, Name: "   "}, wantErr: true},
		{name: "name too long", cmd: RenameCommand{UserID: id, TenantID: id, Name: strings.Repeat("a", 129)}, wantErr: true},
		{name: "name at limit", cmd: RenameCommand{UserID: id, TenantID: id, Name: strings.Repeat("a", 128)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAuthorizeRename(t *testing.T) {
	st, owner, member := setupTenant(t)
	a := NewAuthorizer(st)
	ctx := context.Background()

	require.NoError(t, a.AuthorizeRename(ctx, owner.UserID, owner.TenantID))
	require.ErrorIs(t, a.AuthorizeRename(ctx, member.UserID, member.TenantID), apperr.ErrAuthorization)
	require.ErrorIs(t, a.AuthorizeRename(ctx, uuid.Must(uuid.NewV7()), owner.TenantID), apperr.ErrAuthorization)
}

func TestRenameTenant_Owner(t *testing.T) {
	st, owner, _ := setupTenant(t)
	ctx := context.Background()

	err := NewAuthorizer(st).RenameTenant(ctx, RenameCommand{UserID: owner.UserID, TenantID: owner.TenantID, Name: "  Acme Corp "})
	require.NoError(t, err)

	tenant, err := NewDirectory(st).Tenant(ctx, owner.TenantID)
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", tenant.Name)
}

func TestRenameTenant_MemberForbidden(t *testing.T) {
	st, _, member := setupTenant(t)
	ctx := context.Background()

	err := NewAuthorizer(st).RenameTenant(ctx, RenameCommand{UserID: member.UserID, TenantID: member.TenantID, Name: "Hijacked"})
	require.ErrorIs(t, err, apperr.ErrAuthorization)
	require.Equal(t, 403, apperr.HTTPStatus(err))

	tenant, err := NewDirectory(st).Tenant(ctx, member.TenantID)
	require.NoError(t, err)
	require.Equal(t, "tenant-org_1", tenant.Name)
}

func TestRenameTenant_OtherTenantForbidden(t *testing.T) {
	st, owner, _ := setupTenant(t)
	ctx := context.Background()

	other, err := NewResolver(st).Resolve(ctx, ResolveCommand{ExternalUserID: "user_other", ExternalOrgID: "org_2", Email: "other@example.com"})
	require.NoError(t, err)

	err = NewAuthorizer(st).RenameTenant(ctx, RenameCommand{UserID: owner.UserID, TenantID: other.TenantID, Name: "Mine"})
	require.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestRenameTenant_NameTaken(t *testing.T) {
	st, owner, _ := setupTenant(t)
	ctx := context.Background()

	_, err := NewResolver(st).Resolve(ctx, ResolveCommand{ExternalUserID: "user_other", ExternalOrgID: "org_2", Email: "other@example.com"})
	require.NoError(t, err)

	err = NewAuthorizer(st).RenameTenant(ctx, RenameCommand{UserID: owner.UserID, TenantID: owner.TenantID, Name: "tenant-org_2"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRenameTenant_ValidationBeforeAuthorization(t *testing.T) {
	st, _, member := setupTenant(t)

	err := NewAuthorizer(st).RenameTenant(context.Background(), RenameCommand{UserID: member.UserID, TenantID: member.TenantID, Name: ""})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDirectory_UserEmailUnknown(t *testing.T) {
	st, _, _ := setupTenant(t)

	email, found, err := NewDirectory(st).UserEmail(context.Background(), uuid.Must(uuid.NewV7()))
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, email)
}

func TestDirectory_TenantUnknown(t *testing.T) {
	st, _, _ := setupTenant(t)

	_, err := NewDirectory(st).Tenant(context.Background(), uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRenameTenant_UnknownTenant(t *testing.T) {
	st, owner, _ := setupTenant(t)

	err := NewAuthorizer(st).RenameTenant(context.Background(), RenameCommand{UserID: owner.UserID, TenantID: uuid.Must(uuid.NewV7()), Name: "Ghost"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

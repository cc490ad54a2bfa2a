package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/store/memory"
	"golang.org/x/sync/errgroup"
)

func TestResolveCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     ResolveCommand
		wantErr bool
	}{
		{name: "valid", cmd: ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"}},
		{name: "missing user", cmd: ResolveCommand{ExternalOrgID: "org_1", Email: "a@example.com"}, wantErr: true},
		{name: "missing org", cmd: ResolveCommand{ExternalUserID: "user_1", Email: "a@example.com"}, wantErr: true},
		{name: "missing email", cmd: ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1"}, wantErr: true},
		{name: "malformed email", cmd: ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "not-an-email"}, wantErr: true},
		{name: "longest org id", cmd: ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: strings.Repeat("o", 121), Email: "a@example.com"}},
		{name: "org id too long for tenant name", cmd: ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: strings.Repeat("o", 122), Email: "a@example.com"}, wantErr: true},
		{name: "longest email", cmd: ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: strings.Repeat("a", 244) + "@example.com"}},
		{name: "email too long", cmd: ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: strings.Repeat("a", 245) + "@example.com"}, wantErr: true},
		{name: "user id too long", cmd: ResolveCommand{ExternalUserID: strings.Repeat("u", 257), ExternalOrgID: "org_1", Email: "a@example.com"}, wantErr: true},
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

func TestResolve_FirstContactProvisionsOwner(t *testing.T) {
	ctx := context.Background()
	st := memory.NewIdentityStore()
	r := NewResolver(st)

	id, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id.UserID)
	require.NotEqual(t, uuid.Nil, id.TenantID)

	tenants, users, memberships := st.Counts()
	require.Equal(t, 1, tenants)
	require.Equal(t, 1, users)
	require.Equal(t, 1, memberships)

	ms := st.Memberships(id.TenantID)
	require.Len(t, ms, 1)
	require.Equal(t, models.RoleOwner, ms[0].Role)

	tenant, err := NewDirectory(st).Tenant(ctx, id.TenantID)
	require.NoError(t, err)
	require.Equal(t, "tenant-org_1", tenant.Name)
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.NewIdentityStore()
	r := NewResolver(st)
	cmd := ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"}

	first, err := r.Resolve(ctx, cmd)
	require.NoError(t, err)

	second, err := r.Resolve(ctx, cmd)
	require.NoError(t, err)
	require.Equal(t, first, second)

	tenants, users, memberships := st.Counts()
	require.Equal(t, 1, tenants)
	require.Equal(t, 1, users)
	require.Equal(t, 1, memberships)
}

func TestResolve_SecondUserJoinsAsMember(t *testing.T) {
	ctx := context.Background()
	st := memory.NewIdentityStore()
	r := NewResolver(st)

	owner, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.NoError(t, err)

	member, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_2", ExternalOrgID: "org_1", Email: "b@example.com"})
	require.NoError(t, err)
	require.Equal(t, owner.TenantID, member.TenantID)
	require.NotEqual(t, owner.UserID, member.UserID)

	roles := map[uuid.UUID]models.Role{}
	for _, m := range st.Memberships(owner.TenantID) {
		roles[m.UserID] = m.Role
	}
	require.Equal(t, models.RoleOwner, roles[owner.UserID])
	require.Equal(t, models.RoleMember, roles[member.UserID])
}

func TestResolve_SameUserAcrossOrganizations(t *testing.T) {
	ctx := context.Background()
	st := memory.NewIdentityStore()
	r := NewResolver(st)

	a, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.NoError(t, err)

	b, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_2", Email: "a@example.com"})
	require.NoError(t, err)

	require.Equal(t, a.UserID, b.UserID)
	require.NotEqual(t, a.TenantID, b.TenantID)

	// first contact with org_2 makes the user its owner too
	ms := st.Memberships(b.TenantID)
	require.Len(t, ms, 1)
	require.Equal(t, models.RoleOwner, ms[0].Role)
}

func TestResolve_UpdatesEmail(t *testing.T) {
	ctx := context.Background()
	st := memory.NewIdentityStore()
	r := NewResolver(st)

	id, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "old@example.com"})
	require.NoError(t, err)

	_, err = r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "new@example.com"})
	require.NoError(t, err)

	email, found, err := NewDirectory(st).UserEmail(ctx, id.UserID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "new@example.com", email)
}

func TestResolve_EmailOwnedByAnotherUser(t *testing.T) {
	ctx := context.Background()
	st := memory.NewIdentityStore()
	r := NewResolver(st)

	_, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_2", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, users, _ := st.Counts()
	require.Equal(t, 1, users)
}

func TestResolve_InvalidCommandWritesNothing(t *testing.T) {
	st := memory.NewIdentityStore()
	r := NewResolver(st)

	_, err := r.Resolve(context.Background(), ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "bad"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	tenants, users, memberships := st.Counts()
	require.Zero(t, tenants)
	require.Zero(t, users)
	require.Zero(t, memberships)
}

func TestResolve_CancelledCallerStillCommits(t *testing.T) {
	st := memory.NewIdentityStore()
	r := NewResolver(st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st2 := &cancelCheckingStore{IdentityStore: st}
	r.store = st2

	_, err := r.Resolve(ctx, ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, st2.txErr)

	tenants, _, _ := st.Counts()
	require.Equal(t, 1, tenants)
}

func TestResolve_ConcurrentFirstContact(t *testing.T) {
	const workers = 16

	st := memory.NewIdentityStore()
	r := NewResolver(st)

	results := make([]*models.Identity, workers)

	g, ctx := errgroup.WithContext(context.Background())
	for i := range workers {
		g.Go(func() error {
			id, err := r.Resolve(ctx, ResolveCommand{
				ExternalUserID: fmt.Sprintf("user_%d", i),
				ExternalOrgID:  "org_race",
				Email:          fmt.Sprintf("user%d@example.com", i),
			})
			if err != nil {
				return err
			}
			results[i] = id
			return nil
		})
	}
	require.NoError(t, g.Wait())

	tenantID := results[0].TenantID
	for _, id := range results {
		require.Equal(t, tenantID, id.TenantID)
	}

	tenants, users, memberships := st.Counts()
	require.Equal(t, 1, tenants)
	require.Equal(t, workers, users)
	require.Equal(t, workers, memberships)

	owners := 0
	for _, m := range st.Memberships(tenantID) {
		if m.IsOwner() {
			owners++
		}
	}
	require.Equal(t, 1, owners)
}

func TestResolve_LostLinkRace(t *testing.T) {
	winnerTenant := uuid.Must(uuid.NewV7())
	winnerUser := uuid.Must(uuid.NewV7())

	tx := &racingTx{
		tenantLink: &models.ExternalTenantLink{Provider: models.ProviderClerk, ExternalOrgID: "org_1", TenantID: winnerTenant},
		userLink:   &models.ExternalUserLink{Provider: models.ProviderClerk, ExternalUserID: "user_1", UserID: winnerUser},
	}
	r := NewResolver(&fakeStore{tx: tx})

	id, err := r.Resolve(context.Background(), ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.NoError(t, err)
	require.Equal(t, winnerTenant, id.TenantID)
	require.Equal(t, winnerUser, id.UserID)

	// the loser never becomes owner of a tenant it did not create
	require.Equal(t, models.RoleMember, tx.insertedRole)
	require.Equal(t, "a@example.com", tx.updatedEmail)
}

func TestResolve_VanishedLinkIsConflict(t *testing.T) {
	tx := &racingTx{}
	r := NewResolver(&fakeStore{tx: tx})

	_, err := r.Resolve(context.Background(), ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.ErrorIs(t, err, apperr.ErrConflict)
	require.Equal(t, 409, apperr.HTTPStatus(err))
}

func TestResolve_StoreErrorsHideDatabaseDetail(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		want     error
	}{
		{
			name:     "lost race",
			storeErr: fmt.Errorf("%w: unique constraint external_user_links_pkey: ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)", store.ErrTxConflict),
			want:     apperr.ErrConflict,
		},
		{
			name:     "value too long",
			storeErr: fmt.Errorf("%w: ERROR: value too long for type character varying(256) (SQLSTATE 22001)", store.ErrValueTooLong),
			want:     apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeStore{err: tt.storeErr})

			_, err := r.Resolve(context.Background(), ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
			require.ErrorIs(t, err, tt.want)
			require.NotContains(t, err.Error(), "SQLSTATE")
			require.NotContains(t, err.Error(), "constraint")
			require.NotErrorIs(t, err, tt.storeErr)
		})
	}
}

func TestResolve_StoreFailureIsInternal(t *testing.T) {
	r := NewResolver(&fakeStore{err: errors.New("connection reset")})

	_, err := r.Resolve(context.Background(), ResolveCommand{ExternalUserID: "user_1", ExternalOrgID: "org_1", Email: "a@example.com"})
	require.Error(t, err)
	require.True(t, apperr.IsInternal(err))
}

// cancelCheckingStore records whether the transaction context was already done.
type cancelCheckingStore struct {
	*memory.IdentityStore
	txErr error
}

func (s *cancelCheckingStore) WithTransaction(ctx context.Context, fn func(tx store.IdentityTx) error) error {
	s.txErr = ctx.Err()
	return s.IdentityStore.WithTransaction(ctx, fn)
}

type fakeStore struct {
	tx  store.IdentityTx
	err error
}

func (s *fakeStore) WithTransaction(ctx context.Context, fn func(tx store.IdentityTx) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(s.tx)
}

// racingTx behaves like a transaction that loses both link races: the first
// lookups miss, the inserts conflict, and the re-reads see the winner's rows
// (or nothing if the links are nil).
type racingTx struct {
	store.IdentityTx

	tenantLink *models.ExternalTenantLink
	userLink   *models.ExternalUserLink

	tenantReads  int
	userReads    int
	insertedRole models.Role
	updatedEmail string
}

func (tx *racingTx) GetTenantLink(ctx context.Context, provider, externalOrgID string) (*models.ExternalTenantLink, error) {
	tx.tenantReads++
	if tx.tenantReads == 1 || tx.tenantLink == nil {
		return nil, store.ErrLinkNotFound
	}
	return tx.tenantLink, nil
}

func (tx *racingTx) CreateTenantWithLink(ctx context.Context, link *models.ExternalTenantLink, tenant *models.Tenant) (store.InsertResult, error) {
	return store.AlreadyExists, nil
}

func (tx *racingTx) GetUserLink(ctx context.Context, provider, externalUserID string) (*models.ExternalUserLink, error) {
	tx.userReads++
	if tx.userReads == 1 || tx.userLink == nil {
		return nil, store.ErrLinkNotFound
	}
	return tx.userLink, nil
}

func (tx *racingTx) CreateUserWithLink(ctx context.Context, link *models.ExternalUserLink, user *models.User) (store.InsertResult, error) {
	return store.AlreadyExists, nil
}

func (tx *racingTx) UpdateUserEmail(ctx context.Context, userID uuid.UUID, email string) error {
	tx.updatedEmail = email
	return nil
}

func (tx *racingTx) InsertMembership(ctx context.Context, membership *models.Membership) (store.InsertResult, error) {
	tx.insertedRole = membership.Role
	return store.Inserted, nil
}

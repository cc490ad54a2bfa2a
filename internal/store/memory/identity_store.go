package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

type linkKey struct {
	provider   string
	externalID string
}

type membershipKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
}

// identityState holds every table. Transactions work on a copy which replaces
// the committed state only when fn succeeds.
type identityState struct {
	tenants     map[uuid.UUID]models.Tenant
	users       map[uuid.UUID]models.User
	memberships map[membershipKey]models.Membership
	tenantLinks map[linkKey]models.ExternalTenantLink
	userLinks   map[linkKey]models.ExternalUserLink
}

func newIdentityState() *identityState {
	return &identityState{
		tenants:     make(map[uuid.UUID]models.Tenant),
		users:       make(map[uuid.UUID]models.User),
		memberships: make(map[membershipKey]models.Membership),
		tenantLinks: make(map[linkKey]models.ExternalTenantLink),
		userLinks:   make(map[linkKey]models.ExternalUserLink),
	}
}

func (s *identityState) clone() *identityState {
	return &identityState{
		tenants:     maps.Clone(s.tenants),
		users:       maps.Clone(s.users),
		memberships: maps.Clone(s.memberships),
		tenantLinks: maps.Clone(s.tenantLinks),
		userLinks:   maps.Clone(s.userLinks),
	}
}

// IdentityStore implements store.IdentityStore using in-memory storage.
// Transactions are fully serialized. This implementation is for testing and
// local development only - data is lost on restart.
type IdentityStore struct {
	mu    sync.Mutex
	state *identityState
}

var _ store.IdentityStore = (*IdentityStore)(nil)

// NewIdentityStore creates a new in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		state: newIdentityState(),
	}
}

// WithTransaction runs fn against a staged copy of the store and commits it if fn succeeds.
func (s *IdentityStore) WithTransaction(ctx context.Context, fn func(tx store.IdentityTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &identityTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}

	s.state = tx.state
	return nil
}

// Counts returns the number of tenants, users and memberships currently stored.
func (s *IdentityStore) Counts() (tenants, users, memberships int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.state.tenants), len(s.state.users), len(s.state.memberships)
}

// Memberships returns a copy of every membership belonging to tenantID.
func (s *IdentityStore) Memberships(tenantID uuid.UUID) []models.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Membership
	for key, m := range s.state.memberships {
		if key.tenantID == tenantID {
			result = append(result, m)
		}
	}
	return result
}

type identityTx struct {
	state *identityState
}

func (tx *identityTx) GetTenantLink(ctx context.Context, provider, externalOrgID string) (*models.ExternalTenantLink, error) {
	link, ok := tx.state.tenantLinks[linkKey{provider, externalOrgID}]
	if !ok {
		return nil, store.ErrLinkNotFound
	}
	return &link, nil
}

func (tx *identityTx) CreateTenantWithLink(ctx context.Context, link *models.ExternalTenantLink, tenant *models.Tenant) (store.InsertResult, error) {
	key := linkKey{link.Provider, link.ExternalOrgID}
	if _, exists := tx.state.tenantLinks[key]; exists {
		return store.AlreadyExists, nil
	}

	for _, t := range tx.state.tenants {
		if t.Name == tenant.Name {
			return 0, store.ErrTenantNameTaken
		}
	}

	tx.state.tenants[tenant.TenantID] = *tenant
	tx.state.tenantLinks[key] = *link

	return store.Inserted, nil
}

func (tx *identityTx) GetUserLink(ctx context.Context, provider, externalUserID string) (*models.ExternalUserLink, error) {
	link, ok := tx.state.userLinks[linkKey{provider, externalUserID}]
	if !ok {
		return nil, store.ErrLinkNotFound
	}
	return &link, nil
}

func (tx *identityTx) CreateUserWithLink(ctx context.Context, link *models.ExternalUserLink, user *models.User) (store.InsertResult, error) {
	key := linkKey{link.Provider, link.ExternalUserID}
	if _, exists := tx.state.userLinks[key]; exists {
		return store.AlreadyExists, nil
	}

	if tx.emailTaken(user.Email, uuid.Nil) {
		return 0, store.ErrEmailTaken
	}

	tx.state.users[user.UserID] = *user
	tx.state.userLinks[key] = *link

	return store.Inserted, nil
}

func (tx *identityTx) UpdateUserEmail(ctx context.Context, userID uuid.UUID, email string) error {
	user, ok := tx.state.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}

	if tx.emailTaken(email, userID) {
		return store.ErrEmailTaken
	}

	user.Email = email
	user.UpdatedAt = time.Now()
	tx.state.users[userID] = user

	return nil
}

func (tx *identityTx) emailTaken(email string, except uuid.UUID) bool {
	for id, u := range tx.state.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

func (tx *identityTx) InsertMembership(ctx context.Context, membership *models.Membership) (store.InsertResult, error) {
	key := membershipKey{membership.TenantID, membership.UserID}
	if _, exists := tx.state.memberships[key]; exists {
		return store.AlreadyExists, nil
	}

	tx.state.memberships[key] = *membership
	return store.Inserted, nil
}

func (tx *identityTx) GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.Membership, error) {
	m, ok := tx.state.memberships[membershipKey{tenantID, userID}]
	if !ok {
		return nil, store.ErrMembershipNotFound
	}
	return &m, nil
}

func (tx *identityTx) GetTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, ok := tx.state.tenants[tenantID]
	if !ok {
		return nil, store.ErrTenantNotFound
	}
	return &tenant, nil
}

func (tx *identityTx) UpdateTenantName(ctx context.Context, tenantID uuid.UUID, name string) error {
	tenant, ok := tx.state.tenants[tenantID]
	if !ok {
		return store.ErrTenantNotFound
	}

	for id, t := range tx.state.tenants {
		if id != tenantID && t.Name == name {
			return store.ErrTenantNameTaken
		}
	}

	tenant.Name = name
	tenant.UpdatedAt = time.Now()
	tx.state.tenants[tenantID] = tenant

	return nil
}

func (tx *identityTx) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, ok := tx.state.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &user, nil
}

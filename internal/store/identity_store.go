package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// Sentinel errors for identity store operations
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrLinkNotFound       = errors.New("external link not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrTenantNameTaken    = errors.New("tenant name already taken")
	ErrEmailTaken         = errors.New("email already in use")
	ErrTxConflict         = errors.New("transaction conflict (retryable)")
	ErrValueTooLong       = errors.New("value exceeds column width")
)

// InsertResult reports the outcome of an insert that tolerates a concurrent
// insert of the same unique key.
type InsertResult int

const (
	// Inserted means this transaction wrote the row.
	Inserted InsertResult = iota
	// AlreadyExists means a row with the same unique key was already there, or
	// was committed by a concurrent transaction; nothing was written.
	AlreadyExists
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// IdentityStore is the unit of work for the tenancy data model.
type IdentityStore interface {
	// WithTransaction runs fn inside a single atomic transaction. If fn returns an
	// error every write made through tx is discarded.
	WithTransaction(ctx context.Context, fn func(tx IdentityTx) error) error
}

// IdentityTx exposes the operations available inside a transaction.
type IdentityTx interface {
	// GetTenantLink returns ErrLinkNotFound if the organization has never been seen.
	GetTenantLink(ctx context.Context, provider, externalOrgID string) (*models.ExternalTenantLink, error)

	// CreateTenantWithLink claims the external organization for tenant and inserts
	// the tenant. If the organization is already linked nothing is written and
	// AlreadyExists is returned.
	CreateTenantWithLink(ctx context.Context, link *models.ExternalTenantLink, tenant *models.Tenant) (InsertResult, error)

	// GetUserLink returns ErrLinkNotFound if the subject has never been seen.
	GetUserLink(ctx context.Context, provider, externalUserID string) (*models.ExternalUserLink, error)

	// CreateUserWithLink claims the external subject for user and inserts the
	// user. If the subject is already linked nothing is written and AlreadyExists
	// is returned. Returns ErrEmailTaken if the email belongs to another user.
	CreateUserWithLink(ctx context.Context, link *models.ExternalUserLink, user *models.User) (InsertResult, error)

	// UpdateUserEmail returns ErrUserNotFound or ErrEmailTaken.
	UpdateUserEmail(ctx context.Context, userID uuid.UUID, email string) error

	// InsertMembership inserts the membership unless one already exists for the
	// (tenant, user) pair, in which case the existing row is left untouched.
	InsertMembership(ctx context.Context, membership *models.Membership) (InsertResult, error)

	// GetMembership returns ErrMembershipNotFound if the user is not a member.
	GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.Membership, error)

	// GetTenant returns ErrTenantNotFound if the tenant doesn't exist.
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// UpdateTenantName returns ErrTenantNotFound or ErrTenantNameTaken.
	UpdateTenantName(ctx context.Context, tenantID uuid.UUID, name string) error

	// GetUser returns ErrUserNotFound if the user doesn't exist.
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

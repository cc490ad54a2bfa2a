package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// IdentityStore implements store.IdentityStore using PostgreSQL.
//
// Transactions run at READ COMMITTED. Concurrent first contacts for the same
// external id collide on the link's primary key: the loser's
// INSERT ... ON CONFLICT DO NOTHING waits for the winner to commit and then
// reports AlreadyExists, after which a fresh read sees the winner's row.
type IdentityStore struct {
	pool *pgxpool.Pool
	cfg  *IdentityStoreConfig
}

var _ store.IdentityStore = (*IdentityStore)(nil)

// NewIdentityStore creates a new PostgreSQL-backed identity store.
// It shares the connection pool with other components.
func NewIdentityStore(ctx context.Context, pool *pgxpool.Pool, cfg *IdentityStoreConfig) (*IdentityStore, error) {
	if cfg == nil {
		cfg = &IdentityStoreConfig{}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity store config: %w", err)
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &IdentityStore{
		pool: pool,
		cfg:  cfg,
	}, nil
}

// WithTransaction runs fn in a READ COMMITTED transaction bounded by the
// configured query timeout. The transaction is rolled back if fn fails.
func (s *IdentityStore) WithTransaction(ctx context.Context, fn func(tx store.IdentityTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.queryTimeout())
	defer cancel()

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&identityTx{tx: tx})
	})
	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *IdentityStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type identityTx struct {
	tx pgx.Tx
}

func (t *identityTx) GetTenantLink(ctx context.Context, provider, externalOrgID string) (*models.ExternalTenantLink, error) {
	query := `
		SELECT provider, external_org_id, tenant_id
		FROM external_tenant_links
		WHERE provider = $1 AND external_org_id = $2
	`

	var link models.ExternalTenantLink
	err := t.tx.QueryRow(ctx, query, provider, externalOrgID).Scan(
		&link.Provider,
		&link.ExternalOrgID,
		&link.TenantID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get tenant link: %w", err)
	}

	return &link, nil
}

func (t *identityTx) CreateTenantWithLink(ctx context.Context, link *models.ExternalTenantLink, tenant *models.Tenant) (store.InsertResult, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO external_tenant_links (provider, external_org_id, tenant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, external_org_id) DO NOTHING
	`, link.Provider, link.ExternalOrgID, link.TenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert tenant link: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return store.AlreadyExists, nil
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO tenants (tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, tenant.TenantID, tenant.Name, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, mapPostgresError(err)
		}
		return 0, fmt.Errorf("failed to insert tenant: %w", err)
	}

	log.Debug().
		Str("tenant_id", tenant.TenantID.String()).
		Str("external_org_id", link.ExternalOrgID).
		Msg("Created tenant")

	return store.Inserted, nil
}

func (t *identityTx) GetUserLink(ctx context.Context, provider, externalUserID string) (*models.ExternalUserLink, error) {
	query := `
		SELECT provider, external_user_id, user_id
		FROM external_user_links
		WHERE provider = $1 AND external_user_id = $2
	`

	var link models.ExternalUserLink
	err := t.tx.QueryRow(ctx, query, provider, externalUserID).Scan(
		&link.Provider,
		&link.ExternalUserID,
		&link.UserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get user link: %w", err)
	}

	return &link, nil
}

func (t *identityTx) CreateUserWithLink(ctx context.Context, link *models.ExternalUserLink, user *models.User) (store.InsertResult, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO external_user_links (provider, external_user_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, external_user_id) DO NOTHING
	`, link.Provider, link.ExternalUserID, link.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user link: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return store.AlreadyExists, nil
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO users (user_id, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, user.UserID, user.Email, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, mapPostgresError(err)
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("external_user_id", link.ExternalUserID).
		Msg("Created user")

	return store.Inserted, nil
}

func (t *identityTx) UpdateUserEmail(ctx context.Context, userID uuid.UUID, email string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users SET email = $2, updated_at = $3
		WHERE user_id = $1 AND email IS DISTINCT FROM $2
	`, userID, email, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return mapPostgresError(err)
		}
		return fmt.Errorf("failed to update user email: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	// nothing changed, either the email is current or the user is missing
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return store.ErrUserNotFound
	}

	return nil
}

func (t *identityTx) InsertMembership(ctx context.Context, membership *models.Membership) (store.InsertResult, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO memberships (membership_id, tenant_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`, membership.MembershipID, membership.TenantID, membership.UserID, string(membership.Role), membership.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert membership: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return store.AlreadyExists, nil
	}

	return store.Inserted, nil
}

func (t *identityTx) GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT membership_id, tenant_id, user_id, role, created_at
		FROM memberships
		WHERE tenant_id = $1 AND user_id = $2
	`

	var (
		m    models.Membership
		role string
	)
	err := t.tx.QueryRow(ctx, query, tenantID, userID).Scan(
		&m.MembershipID,
		&m.TenantID,
		&m.UserID,
		&role,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m.Role = models.Role(role)
	if !m.Role.Valid() {
		return nil, fmt.Errorf("unknown membership role %q", role)
	}

	return &m, nil
}

func (t *identityTx) GetTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `
		SELECT tenant_id, name, created_at, updated_at
		FROM tenants
		WHERE tenant_id = $1
	`

	var tenant models.Tenant
	err := t.tx.QueryRow(ctx, query, tenantID).Scan(
		&tenant.TenantID,
		&tenant.Name,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &tenant, nil
}

func (t *identityTx) UpdateTenantName(ctx context.Context, tenantID uuid.UUID, name string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE tenants SET name = $2, updated_at = $3
		WHERE tenant_id = $1
	`, tenantID, name, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return mapPostgresError(err)
		}
		return fmt.Errorf("failed to update tenant name: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return store.ErrTenantNotFound
	}

	return nil
}

func (t *identityTx) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT user_id, email, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	var user models.User
	err := t.tx.QueryRow(ctx, query, userID).Scan(
		&user.UserID,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

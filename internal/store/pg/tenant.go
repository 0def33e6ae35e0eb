package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

// tenantRepo implementa repository.TenantRepository (vista read-only).
type tenantRepo struct {
	pool *pgxpool.Pool
}

func (r *tenantRepo) Get(ctx context.Context, tenantID string) (*repository.Tenant, error) {
	const query = `
		SELECT id, slug, name, COALESCE(shop_url, ''), COALESCE(website_url, ''), is_active
		FROM tenants WHERE id = $1`

	var t repository.Tenant
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&t.ID, &t.Slug, &t.Name, &t.ShopURL, &t.WebsiteURL, &t.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	const qDomains = `SELECT domain, is_active FROM tenant_domains WHERE tenant_id = $1 ORDER BY domain`
	rows, err := r.pool.Query(ctx, qDomains, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d repository.TenantDomain
		if err := rows.Scan(&d.Domain, &d.IsActive); err != nil {
			return nil, err
		}
		t.Domains = append(t.Domains, d)
	}
	return &t, rows.Err()
}

func (r *tenantRepo) SecurityConfig(ctx context.Context, tenantID string) (*repository.TenantSecurityConfig, error) {
	const query = `
		SELECT tenant_id, max_sessions_per_user, session_timeout_hours,
		       max_login_attempts, lockout_minutes, enable_progressive_delay,
		       notify_on_new_device, notify_on_lockout, updated_at
		FROM tenant_security_configs WHERE tenant_id = $1`

	var c repository.TenantSecurityConfig
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&c.TenantID, &c.MaxSessionsPerUser, &c.SessionTimeoutHours,
		&c.MaxLoginAttempts, &c.LockoutMinutes, &c.EnableProgressiveDelay,
		&c.NotifyOnNewDevice, &c.NotifyOnLockout, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

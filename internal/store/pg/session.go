package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

// sessionRepo implementa repository.SessionRepository.
type sessionRepo struct {
	pool *pgxpool.Pool
}

const sessionColumns = `
	id, tenant_id, user_id, user_email, user_role, client_app,
	ip_address::text, user_agent, device_type, browser, os, device_fingerprint,
	refresh_token_hash, created_at, last_activity, expires_at,
	is_active, revoked_at, revoke_reason`

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(
		&s.ID, &s.TenantID, &s.UserID, &s.UserEmail, &s.UserRole, &s.ClientApp,
		&s.IPAddress, &s.UserAgent, &s.DeviceType, &s.Browser, &s.OS, &s.DeviceFingerprint,
		&s.RefreshTokenHash, &s.CreatedAt, &s.LastActivity, &s.ExpiresAt,
		&s.IsActive, &s.RevokedAt, &s.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	query := `
		INSERT INTO sessions (
			id, tenant_id, user_id, user_email, user_role, client_app,
			ip_address, user_agent, device_type, browser, os, device_fingerprint,
			refresh_token_hash, expires_at, created_at, last_activity
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::inet, $8, $9, $10, $11, $12,
			$13, $14, NOW(), NOW()
		)
		RETURNING ` + sessionColumns

	row := r.pool.QueryRow(ctx, query,
		input.ID, input.TenantID, input.UserID, input.UserEmail, input.UserRole, input.ClientApp,
		nullIfEmpty(input.IPAddress), nullIfEmpty(input.UserAgent),
		nullIfEmpty(input.DeviceType), nullIfEmpty(input.Browser), nullIfEmpty(input.OS),
		nullIfEmpty(input.DeviceFingerprint),
		input.RefreshTokenHash, input.ExpiresAt,
	)
	return scanSession(row)
}

func (r *sessionRepo) Get(ctx context.Context, sessionID string) (*repository.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, sessionID))
}

func (r *sessionRepo) ListActiveByUser(ctx context.Context, tenantID, userID string) ([]repository.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tenant_id = $1 AND user_id = $2 AND is_active AND expires_at > NOW()
		ORDER BY last_activity ASC`
	return r.list(ctx, query, tenantID, userID)
}

func (r *sessionRepo) ListActiveByTenant(ctx context.Context, tenantID string) ([]repository.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tenant_id = $1 AND is_active AND expires_at > NOW()
		ORDER BY last_activity DESC`
	return r.list(ctx, query, tenantID)
}

func (r *sessionRepo) list(ctx context.Context, query string, args ...any) ([]repository.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) UpdateActivity(ctx context.Context, sessionID string, lastActivity time.Time) error {
	const query = `UPDATE sessions SET last_activity = $2 WHERE id = $1 AND is_active`
	tag, err := r.pool.Exec(ctx, query, sessionID, lastActivity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) UpdateRefreshHash(ctx context.Context, sessionID, refreshTokenHash string, lastActivity time.Time) error {
	const query = `
		UPDATE sessions SET refresh_token_hash = $2, last_activity = $3
		WHERE id = $1 AND is_active`
	tag, err := r.pool.Exec(ctx, query, sessionID, refreshTokenHash, lastActivity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) Revoke(ctx context.Context, sessionID, reason string) error {
	const query = `
		UPDATE sessions
		SET is_active = FALSE, revoked_at = NOW(), revoke_reason = $2
		WHERE id = $1 AND is_active`
	tag, err := r.pool.Exec(ctx, query, sessionID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) RevokeAllByUser(ctx context.Context, tenantID, userID, reason string) (int, error) {
	const query = `
		UPDATE sessions
		SET is_active = FALSE, revoked_at = NOW(), revoke_reason = $3
		WHERE tenant_id = $1 AND user_id = $2 AND is_active`
	tag, err := r.pool.Exec(ctx, query, tenantID, userID, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) HasActiveSession(ctx context.Context, tenantID, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE tenant_id = $1 AND user_id = $2 AND is_active AND expires_at > NOW()
		)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(&exists)
	return exists, err
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	const query = `DELETE FROM sessions WHERE expires_at < NOW() OR NOT is_active`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

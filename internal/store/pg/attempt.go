package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

// attemptRepo implementa repository.LoginAttemptRepository.
type attemptRepo struct {
	pool *pgxpool.Pool
}

func (r *attemptRepo) Insert(ctx context.Context, a repository.LoginAttempt) error {
	const query = `
		INSERT INTO login_attempts (
			tenant_id, email, ip_address, success, failure_reason,
			user_agent, device_type, browser, os, created_at
		) VALUES ($1, LOWER($2), $3::inet, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		a.TenantID, a.Email, a.IPAddress, a.Success, a.FailureReason,
		a.UserAgent, a.DeviceType, a.Browser, a.OS, a.CreatedAt,
	)
	return err
}

func (r *attemptRepo) CountFailures(ctx context.Context, tenantID, email, ip string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM login_attempts
		WHERE tenant_id = $1 AND email = LOWER($2) AND ip_address = $3::inet
		  AND NOT success AND created_at >= $4`
	var n int
	err := r.pool.QueryRow(ctx, query, tenantID, email, ip, since).Scan(&n)
	return n, err
}

func (r *attemptRepo) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1::inet AND NOT success AND created_at >= $2`
	var n int
	err := r.pool.QueryRow(ctx, query, ip, since).Scan(&n)
	return n, err
}

func (r *attemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `DELETE FROM login_attempts WHERE created_at < $1`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

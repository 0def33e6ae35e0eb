package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

// blockedIPRepo implementa repository.BlockedIPRepository.
type blockedIPRepo struct {
	pool *pgxpool.Pool
}

// Find retorna el bloqueo vigente para la IP, global o del tenant. Cuando
// hay ambos gana el que expira más tarde.
func (r *blockedIPRepo) Find(ctx context.Context, ip, tenantID string) (*repository.BlockedIP, error) {
	const query = `
		SELECT id, ip_address::text, scope, tenant_id, reason, created_at, expires_at
		FROM blocked_ips
		WHERE ip_address = $1::inet
		  AND expires_at > NOW()
		  AND (scope = 'global' OR (scope = 'tenant' AND tenant_id = $2))
		ORDER BY expires_at DESC
		LIMIT 1`

	var b repository.BlockedIP
	err := r.pool.QueryRow(ctx, query, ip, tenantID).Scan(
		&b.ID, &b.IPAddress, &b.Scope, &b.TenantID, &b.Reason, &b.CreatedAt, &b.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *blockedIPRepo) Insert(ctx context.Context, block repository.BlockedIP) error {
	const query = `
		INSERT INTO blocked_ips (ip_address, scope, tenant_id, reason, created_at, expires_at)
		VALUES ($1::inet, $2, $3, $4, $5, $6)
		ON CONFLICT (ip_address, scope, tenant_id)
		DO UPDATE SET expires_at = GREATEST(blocked_ips.expires_at, EXCLUDED.expires_at),
		              reason = EXCLUDED.reason`
	_, err := r.pool.Exec(ctx, query,
		block.IPAddress, block.Scope, block.TenantID, block.Reason,
		block.CreatedAt, block.ExpiresAt,
	)
	return err
}

func (r *blockedIPRepo) DeleteExpired(ctx context.Context) (int, error) {
	const query = `DELETE FROM blocked_ips WHERE expires_at < NOW()`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

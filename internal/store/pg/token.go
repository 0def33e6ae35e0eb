package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

// tokenRepo implementa repository.TokenRepository.
type tokenRepo struct {
	pool *pgxpool.Pool
}

const tokenColumns = `
	id, token_hash, session_id, tenant_id, user_id, client_id,
	family_id, generation, used_at, issued_at, expires_at,
	revoked_at, revoke_reason`

func scanToken(row pgx.Row) (*repository.RefreshToken, error) {
	var t repository.RefreshToken
	err := row.Scan(
		&t.ID, &t.TokenHash, &t.SessionID, &t.TenantID, &t.UserID, &t.ClientID,
		&t.FamilyID, &t.Generation, &t.UsedAt, &t.IssuedAt, &t.ExpiresAt,
		&t.RevokedAt, &t.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepo) Create(ctx context.Context, input repository.CreateRefreshTokenInput) (*repository.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (
			token_hash, session_id, tenant_id, user_id, client_id,
			family_id, generation, issued_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8)
		RETURNING ` + tokenColumns

	row := r.pool.QueryRow(ctx, query,
		input.TokenHash, input.SessionID, input.TenantID, input.UserID, input.ClientID,
		input.FamilyID, input.Generation, input.ExpiresAt,
	)
	return scanToken(row)
}

func (r *tokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return scanToken(r.pool.QueryRow(ctx, query, tokenHash))
}

// Consume es el update condicional que garantiza un solo ganador: el WHERE
// exige used_at IS NULL, así que de N llamadas concurrentes con el mismo
// hash exactamente una afecta la fila y las demás reciben ErrNotFound.
func (r *tokenRepo) Consume(ctx context.Context, tokenHash string, usedAt time.Time) (*repository.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET used_at = $2
		WHERE token_hash = $1
		  AND used_at IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > NOW()
		RETURNING ` + tokenColumns
	return scanToken(r.pool.QueryRow(ctx, query, tokenHash, usedAt))
}

func (r *tokenRepo) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	const query = `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $2
		WHERE family_id = $1 AND revoked_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, familyID, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *tokenRepo) RevokeBySession(ctx context.Context, sessionID, reason string) (int, error) {
	const query = `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $2
		WHERE session_id = $1 AND revoked_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, sessionID, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *tokenRepo) RevokeAllByUser(ctx context.Context, tenantID, userID, reason string) (int, error) {
	const query = `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $3
		WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, tenantID, userID, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *tokenRepo) DeleteFamily(ctx context.Context, familyID string) error {
	const query = `DELETE FROM refresh_tokens WHERE family_id = $1`
	_, err := r.pool.Exec(ctx, query, familyID)
	return err
}

func (r *tokenRepo) DeleteExpired(ctx context.Context) (int, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < NOW() OR revoked_at IS NOT NULL`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

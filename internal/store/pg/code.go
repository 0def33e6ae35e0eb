package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

// codeRepo implementa repository.AuthCodeRepository.
type codeRepo struct {
	pool *pgxpool.Pool
}

func (r *codeRepo) Create(ctx context.Context, code repository.AuthorizationCode) error {
	const query = `
		INSERT INTO auth_codes (
			code, client_id, tenant_id, user_id, user_email, user_role,
			redirect_uri, code_challenge, challenge_method, state, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11)`
	_, err := r.pool.Exec(ctx, query,
		code.Code, code.ClientID, code.TenantID,
		code.UserID, code.UserEmail, code.UserRole,
		code.RedirectURI, code.CodeChallenge, code.ChallengeMethod, code.State,
		code.ExpiresAt,
	)
	return err
}

// Consume es un find-and-delete atómico: DELETE ... RETURNING garantiza que
// un código se canjea exactamente una vez aun bajo concurrencia.
func (r *codeRepo) Consume(ctx context.Context, code string) (*repository.AuthorizationCode, error) {
	const query = `
		DELETE FROM auth_codes
		WHERE code = $1
		RETURNING code, client_id, tenant_id, user_id, user_email, user_role,
			redirect_uri, code_challenge, challenge_method, state, created_at, expires_at`

	var c repository.AuthorizationCode
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&c.Code, &c.ClientID, &c.TenantID, &c.UserID, &c.UserEmail, &c.UserRole,
		&c.RedirectURI, &c.CodeChallenge, &c.ChallengeMethod, &c.State, &c.CreatedAt, &c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *codeRepo) DeleteExpired(ctx context.Context) (int, error) {
	const query = `DELETE FROM auth_codes WHERE expires_at < NOW()`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

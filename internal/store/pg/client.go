package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

// clientRepo implementa repository.ClientRepository.
type clientRepo struct {
	pool *pgxpool.Pool
}

const clientColumns = `
	id, client_id, name, client_type, secret_hash, redirect_uris,
	is_first_party, is_active, created_at`

func scanClient(row pgx.Row) (*repository.OAuthClient, error) {
	var c repository.OAuthClient
	err := row.Scan(
		&c.ID, &c.ClientID, &c.Name, &c.Type, &c.SecretHash, &c.RedirectURIs,
		&c.IsFirstParty, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.OAuthClient, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients WHERE client_id = $1`
	return scanClient(r.pool.QueryRow(ctx, query, clientID))
}

func (r *clientRepo) Create(ctx context.Context, input repository.CreateClientInput) (*repository.OAuthClient, error) {
	query := `
		INSERT INTO oauth_clients (client_id, name, client_type, secret_hash, redirect_uris, is_first_party)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + clientColumns

	row := r.pool.QueryRow(ctx, query,
		input.ClientID, input.Name, input.Type, input.SecretHash,
		input.RedirectURIs, input.IsFirstParty,
	)
	c, err := scanClient(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return c, nil
}

func (r *clientRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM oauth_clients`).Scan(&n)
	return n, err
}

func (r *clientRepo) List(ctx context.Context) ([]repository.OAuthClient, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.OAuthClient
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

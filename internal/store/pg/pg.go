// Package pg implementa los repositorios de dominio sobre PostgreSQL (pgx).
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
)

// PoolConfig tuning opcional del pool de conexiones.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// Store agrupa el pool y los repositorios que viven sobre él.
type Store struct {
	pool *pgxpool.Pool

	Sessions   repository.SessionRepository
	Tokens     repository.TokenRepository
	Codes      repository.AuthCodeRepository
	Attempts   repository.LoginAttemptRepository
	BlockedIPs repository.BlockedIPRepository
	Tenants    repository.TenantRepository
	Clients    repository.ClientRepository
}

// New crea el pool y los repositorios. El ping de arranque es best-effort:
// si la DB está caída el proceso arranca igual y reintenta por conexión.
func New(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.L().With(logger.Component("pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("startup ping failed", logger.Err(err))
	} else {
		log.Info("pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}

	return &Store{
		pool:       pool,
		Sessions:   &sessionRepo{pool: pool},
		Tokens:     &tokenRepo{pool: pool},
		Codes:      &codeRepo{pool: pool},
		Attempts:   &attemptRepo{pool: pool},
		BlockedIPs: &blockedIPRepo{pool: pool},
		Tenants:    &tenantRepo{pool: pool},
		Clients:    &clientRepo{pool: pool},
	}, nil
}

// Pool expone el pool interno (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package repository

import (
	"context"
	"time"
)

// AuthorizationCode es un código de autorización de un solo uso, de vida
// corta, que liga la identidad del usuario al client que lo canjeará.
type AuthorizationCode struct {
	Code     string // valor opaco, primary key
	ClientID string
	TenantID string

	// Snapshot de identidad capturado al emitir el código.
	UserID    string
	UserEmail string
	UserRole  string

	RedirectURI string

	// PKCE (opcional). Method es "S256" o "plain".
	CodeChallenge   string
	ChallengeMethod string

	// State opaco del cliente (anti-CSRF, se devuelve tal cual).
	State string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// AuthCodeRepository define operaciones sobre authorization codes.
//
// Consume debe ser atómico (find-and-delete): un código se canjea
// exactamente una vez, incluso bajo concurrencia.
type AuthCodeRepository interface {
	// Create persiste un código nuevo.
	Create(ctx context.Context, code AuthorizationCode) error

	// Consume elimina y retorna el código si existe.
	// Retorna ErrNotFound si no existe o ya fue canjeado.
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteExpired elimina códigos vencidos.
	DeleteExpired(ctx context.Context) (int, error)
}

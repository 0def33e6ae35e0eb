package repository

import (
	"context"
	"time"
)

// RefreshToken representa un refresh token emitido. Nunca se persiste el
// token crudo, sólo su hash SHA-256.
type RefreshToken struct {
	ID        string
	TokenHash string
	SessionID string
	TenantID  string
	UserID    string
	ClientID  string

	// FamilyID agrupa todos los tokens descendientes de un mismo login.
	FamilyID string
	// Generation es un contador monotónico dentro de la familia (1 = login).
	Generation int

	// UsedAt se setea exactamente una vez, de forma atómica, al consumirse.
	UsedAt *time.Time

	IssuedAt     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokeReason *string
}

// CreateRefreshTokenInput contiene los datos para persistir un refresh token.
type CreateRefreshTokenInput struct {
	TokenHash  string
	SessionID  string
	TenantID   string
	UserID     string
	ClientID   string
	FamilyID   string
	Generation int
	ExpiresAt  time.Time
}

// TokenRepository define operaciones sobre refresh tokens.
//
// Invariante: a lo sumo un token *sin usar* por familia. Consume es la
// única vía de marcar un token como usado y debe ser un update condicional
// atómico: dos llamadas concurrentes sobre el mismo hash producen
// exactamente un éxito y un ErrNotFound.
type TokenRepository interface {
	// Create persiste un nuevo refresh token.
	Create(ctx context.Context, input CreateRefreshTokenInput) (*RefreshToken, error)

	// GetByHash busca un token por su hash, en cualquier estado.
	// Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Consume marca como usado el token identificado por hash sólo si está
	// sin usar, sin revocar y sin expirar, y retorna el registro previo.
	// Retorna ErrNotFound si no hay token consumible con ese hash.
	Consume(ctx context.Context, tokenHash string, usedAt time.Time) (*RefreshToken, error)

	// RevokeFamily revoca todos los tokens de una familia.
	// Retorna el número de tokens revocados.
	RevokeFamily(ctx context.Context, familyID, reason string) (int, error)

	// RevokeBySession revoca todos los tokens asociados a una sesión.
	RevokeBySession(ctx context.Context, sessionID, reason string) (int, error)

	// RevokeAllByUser revoca todos los tokens de un usuario en un tenant.
	RevokeAllByUser(ctx context.Context, tenantID, userID, reason string) (int, error)

	// DeleteFamily elimina físicamente una familia completa. Se usa como
	// limpieza compensatoria cuando la creación de la sesión dueña falla.
	DeleteFamily(ctx context.Context, familyID string) error

	// DeleteExpired elimina tokens expirados o revocados.
	DeleteExpired(ctx context.Context) (int, error)
}

package repository

import (
	"context"
	"time"
)

// Aplicaciones cliente conocidas. client_app en sessions usa estos valores.
const (
	ClientAppWeb    = "web"
	ClientAppMobile = "mobile"
	ClientAppAPI    = "api"
)

// Session representa una sesión autenticada de un usuario en un dispositivo.
type Session struct {
	ID        string // session_id opaco, primary key
	TenantID  string
	UserID    string
	UserEmail string
	UserRole  string
	ClientApp string // web | mobile | api

	// Metadata del dispositivo
	IPAddress         *string
	UserAgent         *string
	DeviceType        *string // desktop, mobile, tablet, unknown
	Browser           *string
	OS                *string
	DeviceFingerprint *string

	// Hash del refresh token vigente (puntero a la familia activa)
	RefreshTokenHash string

	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	IsActive     bool
	RevokedAt    *time.Time
	RevokeReason *string
}

// CreateSessionInput contiene los datos para crear una nueva sesión.
type CreateSessionInput struct {
	ID                string
	TenantID          string
	UserID            string
	UserEmail         string
	UserRole          string
	ClientApp         string
	IPAddress         string
	UserAgent         string
	DeviceType        string
	Browser           string
	OS                string
	DeviceFingerprint string
	RefreshTokenHash  string
	ExpiresAt         time.Time
}

// SessionRepository define operaciones sobre sesiones.
type SessionRepository interface {
	// Create inserta una nueva sesión.
	Create(ctx context.Context, input CreateSessionInput) (*Session, error)

	// Get obtiene una sesión por su session_id.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// ListActiveByUser retorna las sesiones activas y no expiradas de un
	// usuario, ordenadas por last_activity ascendente (la más vieja primero).
	ListActiveByUser(ctx context.Context, tenantID, userID string) ([]Session, error)

	// ListActiveByTenant retorna las sesiones activas del tenant.
	ListActiveByTenant(ctx context.Context, tenantID string) ([]Session, error)

	// UpdateActivity actualiza el timestamp de última actividad.
	UpdateActivity(ctx context.Context, sessionID string, lastActivity time.Time) error

	// UpdateRefreshHash reemplaza el hash del refresh token vigente y
	// actualiza last_activity. Se llama en cada rotación.
	UpdateRefreshHash(ctx context.Context, sessionID, refreshTokenHash string, lastActivity time.Time) error

	// Revoke marca una sesión como inactiva con un motivo.
	Revoke(ctx context.Context, sessionID, reason string) error

	// RevokeAllByUser revoca todas las sesiones activas de un usuario.
	// Retorna el número de sesiones revocadas.
	RevokeAllByUser(ctx context.Context, tenantID, userID, reason string) (int, error)

	// HasActiveSession indica si el usuario tiene alguna sesión viva en el
	// tenant (probe para silent-SSO).
	HasActiveSession(ctx context.Context, tenantID, userID string) (bool, error)

	// DeleteExpired elimina sesiones expiradas o revocadas.
	DeleteExpired(ctx context.Context) (int, error)
}

// Alive indica si la sesión sigue siendo utilizable.
func (s *Session) Alive(now time.Time) bool {
	return s.IsActive && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

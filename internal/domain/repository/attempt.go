package repository

import (
	"context"
	"time"
)

// LoginAttempt es un registro de auditoría append-only de un intento de
// login. Nunca se muta después del insert.
type LoginAttempt struct {
	ID            string
	TenantID      string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	UserAgent     string
	DeviceType    string
	Browser       string
	OS            string
	CreatedAt     time.Time
}

// LoginAttemptRepository define operaciones sobre intentos de login.
type LoginAttemptRepository interface {
	// Insert registra un intento. Append-only.
	Insert(ctx context.Context, attempt LoginAttempt) error

	// CountFailures cuenta los intentos fallidos para (email, ip, tenant)
	// desde el instante dado.
	CountFailures(ctx context.Context, tenantID, email, ip string, since time.Time) (int, error)

	// CountFailuresByIP cuenta fallos por IP a través de todos los tenants
	// desde el instante dado. Soporta la protección global anti-DDoS.
	CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)

	// DeleteOlderThan purga el historial anterior al instante dado.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

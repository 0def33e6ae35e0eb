package repository

import (
	"context"
	"time"
)

// Tenant es la proyección mínima del registro de tenants que necesita el
// core SSO: dominios activos y URLs de branding, las dos fuentes de
// confianza para validar redirect URIs de clients web.
type Tenant struct {
	ID         string
	Slug       string
	Name       string
	Domains    []TenantDomain
	ShopURL    string
	WebsiteURL string
	IsActive   bool
}

// TenantDomain es un dominio registrado de un tenant.
type TenantDomain struct {
	Domain   string
	IsActive bool
}

// TenantSecurityConfig es la política de seguridad por tenant. Cuando no
// existe registro se usan los defaults de DefaultSecurityConfig.
type TenantSecurityConfig struct {
	TenantID               string
	MaxSessionsPerUser     int
	SessionTimeoutHours    int
	MaxLoginAttempts       int
	LockoutMinutes         int
	EnableProgressiveDelay bool

	// Flags de notificación: sólo datos, la entrega vive fuera del core.
	NotifyOnNewDevice bool
	NotifyOnLockout   bool

	UpdatedAt time.Time
}

// DefaultMaxSessionsPerUser es el tope de sesiones concurrentes cuando la
// política del tenant trae un valor inválido.
const DefaultMaxSessionsPerUser = 5

// DefaultSecurityConfig retorna la política hard-coded usada cuando el
// tenant no tiene configuración propia.
func DefaultSecurityConfig(tenantID string) *TenantSecurityConfig {
	return &TenantSecurityConfig{
		TenantID:               tenantID,
		MaxSessionsPerUser:     DefaultMaxSessionsPerUser,
		SessionTimeoutHours:    168, // 7 días
		MaxLoginAttempts:       5,
		LockoutMinutes:         15,
		EnableProgressiveDelay: true,
		NotifyOnNewDevice:      true,
		NotifyOnLockout:        true,
	}
}

// TenantRepository expone la vista read-only de tenants que consume el core.
type TenantRepository interface {
	// Get obtiene un tenant con sus dominios.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, tenantID string) (*Tenant, error)

	// SecurityConfig obtiene la política de seguridad del tenant.
	// Retorna ErrNotFound cuando no hay registro (el caller aplica defaults).
	SecurityConfig(ctx context.Context, tenantID string) (*TenantSecurityConfig, error)
}

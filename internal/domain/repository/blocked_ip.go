package repository

import (
	"context"
	"time"
)

// Alcances de un bloqueo de IP.
const (
	BlockScopeGlobal = "global"
	BlockScopeTenant = "tenant"
)

// BlockedIP representa un bloqueo de IP, global o por tenant.
type BlockedIP struct {
	ID        string
	IPAddress string
	Scope     string // global | tenant
	TenantID  string // vacío cuando scope=global
	Reason    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// BlockedIPRepository define operaciones sobre la lista de IPs bloqueadas.
// Se consulta en cada chequeo de rate limit.
type BlockedIPRepository interface {
	// Find retorna el bloqueo vigente (no expirado) para la IP, sea global
	// o del tenant dado. Retorna ErrNotFound si no hay bloqueo.
	Find(ctx context.Context, ip, tenantID string) (*BlockedIP, error)

	// Insert registra un bloqueo. Si ya existe uno vigente para la misma
	// (ip, scope, tenant) extiende su expiración.
	Insert(ctx context.Context, block BlockedIP) error

	// DeleteExpired elimina bloqueos vencidos.
	DeleteExpired(ctx context.Context) (int, error)
}

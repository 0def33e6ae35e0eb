package repository

import (
	"context"
	"time"
)

// Tipos de client OAuth.
const (
	ClientTypeWeb    = "web"
	ClientTypeMobile = "mobile"
	ClientTypeAPI    = "api"
)

// OAuthClient representa un cliente OAuth registrado.
//
// RedirectURIs sólo aplica a clients mobile (deep-link schemes estáticos);
// los clients web se validan dinámicamente contra los dominios del tenant.
type OAuthClient struct {
	ID           string
	ClientID     string // identificador público
	Name         string
	Type         string // web | mobile | api
	SecretHash   string // argon2id PHC, vacío para clients públicos
	RedirectURIs []string
	IsFirstParty bool
	IsActive     bool
	CreatedAt    time.Time
}

// CreateClientInput contiene los datos para registrar un client.
// Secret llega en claro y se hashea al persistir.
type CreateClientInput struct {
	ClientID     string
	Name         string
	Type         string
	SecretHash   string
	RedirectURIs []string
	IsFirstParty bool
}

// ClientRepository define operaciones sobre oauth_clients. La colección es
// global (no scoped por tenant).
type ClientRepository interface {
	// Get obtiene un client por su client_id público.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, clientID string) (*OAuthClient, error)

	// Create registra un client. Retorna ErrConflict si ya existe.
	Create(ctx context.Context, input CreateClientInput) (*OAuthClient, error)

	// Count retorna la cantidad de clients registrados. Se usa para decidir
	// el auto-seed de clients first-party.
	Count(ctx context.Context) (int, error)

	// List retorna todos los clients registrados.
	List(ctx context.Context) ([]OAuthClient, error)
}

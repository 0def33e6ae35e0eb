package oauth

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	"github.com/vitrinapp/sso-core/internal/security/password"
	tokens "github.com/vitrinapp/sso-core/internal/security/token"
)

// SeededClient es un client creado por el seed, con su secret en claro
// (sólo se conoce en el momento de la creación).
type SeededClient struct {
	ClientID string
	Name     string
	Type     string
	Secret   string // vacío para clients públicos
}

// defaultClients son los first-party que el seed instala en un registro
// vacío. El client api es confidencial: recibe un secret generado.
var defaultClients = []struct {
	ClientID     string
	Name         string
	Type         string
	RedirectURIs []string
	Confidential bool
}{
	{ClientID: "vitrina-web", Name: "Vitrina Web", Type: repository.ClientTypeWeb},
	{ClientID: "vitrina-mobile", Name: "Vitrina Mobile", Type: repository.ClientTypeMobile,
		RedirectURIs: []string{"vitrina://oauth/callback", "com.vitrinapp.shop://oauth/callback"}},
	{ClientID: "vitrina-api", Name: "Vitrina API", Type: repository.ClientTypeAPI, Confidential: true},
}

// ClientRegistry resuelve clients OAuth y siembra los first-party una sola
// vez por proceso cuando el registro está vacío.
//
// El flag seedTried es sólo una optimización: la deduplicación real la hace
// el insert (ErrConflict se ignora), así que dos primeros requests
// concurrentes son inofensivos.
type ClientRegistry struct {
	repo      repository.ClientRepository
	seedTried atomic.Bool
}

// NewClientRegistry crea el registry.
func NewClientRegistry(repo repository.ClientRepository) *ClientRegistry {
	return &ClientRegistry{repo: repo}
}

// Get resuelve un client activo por su client_id público, intentando el
// auto-seed la primera vez que se consulta en el proceso.
func (r *ClientRegistry) Get(ctx context.Context, clientID string) (*repository.OAuthClient, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, repository.ErrInvalidInput
	}

	r.ensureSeed(ctx)

	client, err := r.repo.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.IsActive {
		return nil, repository.ErrNotFound
	}
	return client, nil
}

// List retorna todos los clients registrados.
func (r *ClientRegistry) List(ctx context.Context) ([]repository.OAuthClient, error) {
	return r.repo.List(ctx)
}

// ensureSeed corre el seed a lo sumo una vez por proceso, best-effort. Un
// fallo no se reintenta: el registro vacío hace fallar el lookup igual.
func (r *ClientRegistry) ensureSeed(ctx context.Context) {
	if !r.seedTried.CompareAndSwap(false, true) {
		return
	}
	seeded, err := r.Seed(ctx)
	if err != nil {
		logger.From(ctx).Warn("client auto-seed failed", logger.Err(err))
		return
	}
	for _, c := range seeded {
		if c.Secret != "" {
			// El secret del client confidencial sólo existe acá. Se loguea
			// una única vez para el bootstrap de desarrollo.
			logger.From(ctx).Warn("seeded confidential client, store this secret",
				logger.ClientID(c.ClientID), logger.String("client_secret", c.Secret))
		} else {
			logger.From(ctx).Info("seeded client", logger.ClientID(c.ClientID))
		}
	}
}

// Seed instala los clients first-party si el registro está vacío. Es
// idempotente: un registro no vacío es un no-op y los conflictos por
// inserts concurrentes se ignoran.
func (r *ClientRegistry) Seed(ctx context.Context) ([]SeededClient, error) {
	n, err := r.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}

	var out []SeededClient
	for _, d := range defaultClients {
		var secret, secretHash string
		if d.Confidential {
			secret, err = tokens.GenerateOpaqueToken(32)
			if err != nil {
				return out, err
			}
			secretHash, err = password.Hash(password.Default, secret)
			if err != nil {
				return out, err
			}
		}

		_, err := r.repo.Create(ctx, repository.CreateClientInput{
			ClientID:     d.ClientID,
			Name:         d.Name,
			Type:         d.Type,
			SecretHash:   secretHash,
			RedirectURIs: d.RedirectURIs,
			IsFirstParty: true,
		})
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return out, err
		}
		out = append(out, SeededClient{
			ClientID: d.ClientID,
			Name:     d.Name,
			Type:     d.Type,
			Secret:   secret,
		})
	}
	return out, nil
}

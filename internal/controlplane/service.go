// Package controlplane expone la configuración por tenant que consume el
// core SSO: política de seguridad y orígenes de confianza para redirect URIs.
// Lee del repositorio de tenants y cachea snapshots de vida corta.
package controlplane

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/vitrinapp/sso-core/internal/cache"
	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
)

// Service expone lecturas de configuración por tenant.
type Service interface {
	// GetTenant obtiene el tenant (cacheado).
	GetTenant(ctx context.Context, tenantID string) (*repository.Tenant, error)

	// SecurityConfig obtiene la política de seguridad del tenant. Nunca
	// falla por ausencia de registro: aplica los defaults hard-coded.
	SecurityConfig(ctx context.Context, tenantID string) *repository.TenantSecurityConfig

	// TrustedOrigins resuelve el set de orígenes confiables del tenant a
	// partir de sus dominios activos y URLs de branding (shop/website).
	TrustedOrigins(ctx context.Context, tenantID string) ([]string, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Tenants  repository.TenantRepository
	Cache    cache.Cache
	CacheTTL time.Duration
}

type service struct {
	tenants  repository.TenantRepository
	cache    cache.Cache
	cacheTTL time.Duration
}

// New crea el service de control plane.
func New(d Deps) Service {
	ttl := d.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &service{tenants: d.Tenants, cache: d.Cache, cacheTTL: ttl}
}

func (s *service) GetTenant(ctx context.Context, tenantID string) (*repository.Tenant, error) {
	key := "tenant:" + tenantID
	if s.cache != nil {
		if b, ok := s.cache.Get(key); ok {
			var t repository.Tenant
			if err := json.Unmarshal(b, &t); err == nil {
				return &t, nil
			}
		}
	}

	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if b, err := json.Marshal(t); err == nil {
			s.cache.Set(key, b, s.cacheTTL)
		}
	}
	return t, nil
}

func (s *service) SecurityConfig(ctx context.Context, tenantID string) *repository.TenantSecurityConfig {
	key := "seccfg:" + tenantID
	if s.cache != nil {
		if b, ok := s.cache.Get(key); ok {
			var cfg repository.TenantSecurityConfig
			if err := json.Unmarshal(b, &cfg); err == nil {
				return &cfg
			}
		}
	}

	cfg, err := s.tenants.SecurityConfig(ctx, tenantID)
	if err != nil {
		if !repository.IsNotFound(err) {
			logger.From(ctx).Warn("security config lookup failed, using defaults",
				logger.TenantID(tenantID), logger.Err(err))
		}
		cfg = repository.DefaultSecurityConfig(tenantID)
	}
	if s.cache != nil {
		if b, err := json.Marshal(cfg); err == nil {
			s.cache.Set(key, b, s.cacheTTL)
		}
	}
	return cfg
}

// TrustedOrigins junta las dos fuentes independientes de confianza en un
// único set resuelto: dominios activos registrados y URLs de branding.
func (s *service) TrustedOrigins(ctx context.Context, tenantID string) ([]string, error) {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var origins []string
	add := func(origin string) {
		origin = strings.ToLower(strings.TrimRight(origin, "/"))
		if origin == "" {
			return
		}
		if _, ok := seen[origin]; ok {
			return
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}

	for _, d := range t.Domains {
		if !d.IsActive || strings.TrimSpace(d.Domain) == "" {
			continue
		}
		add("https://" + strings.ToLower(d.Domain))
	}
	for _, raw := range []string{t.ShopURL, t.WebsiteURL} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		add(u.Scheme + "://" + u.Host)
	}
	return origins, nil
}

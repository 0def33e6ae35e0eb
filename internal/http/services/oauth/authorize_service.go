package oauth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/vitrinapp/sso-core/internal/controlplane"
	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/metrics"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	"github.com/vitrinapp/sso-core/internal/security/password"
	tokens "github.com/vitrinapp/sso-core/internal/security/token"
)

// AuthorizeDeps contiene las dependencias del authorize service.
type AuthorizeDeps struct {
	Codes        repository.AuthCodeRepository
	Clients      *ClientRegistry
	ControlPlane controlplane.Service
}

type authorizeService struct {
	codes   repository.AuthCodeRepository
	clients *ClientRegistry
	cp      controlplane.Service
}

// NewAuthorizeService crea el authorize service.
func NewAuthorizeService(d AuthorizeDeps) AuthorizeService {
	return &authorizeService{
		codes:   d.Codes,
		clients: d.Clients,
		cp:      d.ControlPlane,
	}
}

func (s *authorizeService) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.authorize"))

	if req.ClientID == "" || req.TenantID == "" || req.RedirectURI == "" || req.UserID == "" {
		return nil, ErrMissingParams
	}
	if err := validatePKCEParams(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		return nil, err
	}

	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		log.Debug("client resolution failed", logger.ClientID(req.ClientID), logger.Err(err))
		return nil, ErrInvalidClient
	}

	if err := s.validateRedirectURI(ctx, client, req.TenantID, req.RedirectURI); err != nil {
		log.Warn("redirect validation failed",
			logger.ClientID(req.ClientID), logger.TenantID(req.TenantID),
			logger.String("redirect_uri", req.RedirectURI))
		return nil, err
	}

	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		log.Error("code generation failed", logger.Err(err))
		return nil, ErrCodeGenFailed
	}

	now := time.Now()
	if err := s.codes.Create(ctx, repository.AuthorizationCode{
		Code:            code,
		ClientID:        client.ClientID,
		TenantID:        req.TenantID,
		UserID:          req.UserID,
		UserEmail:       req.UserEmail,
		UserRole:        req.UserRole,
		RedirectURI:     req.RedirectURI,
		CodeChallenge:   req.CodeChallenge,
		ChallengeMethod: req.CodeChallengeMethod,
		State:           req.State,
		CreatedAt:       now,
		ExpiresAt:       now.Add(AuthCodeTTL),
	}); err != nil {
		log.Error("failed to persist auth code", logger.Err(err))
		return nil, ErrCodeGenFailed
	}

	metrics.AuthCodesIssued.Inc()
	log.Info("auth code issued",
		logger.TenantID(req.TenantID), logger.UserID(req.UserID),
		logger.ClientID(client.ClientID))

	return &AuthorizeResult{
		Code:        code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

func (s *authorizeService) Exchange(ctx context.Context, req ExchangeRequest) (*CodeIdentity, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.exchange"))

	if req.Code == "" || req.ClientID == "" || req.RedirectURI == "" {
		return nil, ErrTokenInvalidRequest
	}

	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		log.Debug("client resolution failed", logger.ClientID(req.ClientID))
		return nil, ErrTokenInvalidClient
	}

	// Clients confidenciales autentican con secret; el verifier PKCE es la
	// prueba de posesión de los públicos.
	if client.SecretHash != "" {
		if req.ClientSecret == "" || !password.Verify(req.ClientSecret, client.SecretHash) {
			log.Warn("client secret verification failed", logger.ClientID(req.ClientID))
			return nil, ErrTokenInvalidClient
		}
	}

	// Consumo atómico: un code se canjea exactamente una vez.
	code, err := s.codes.Consume(ctx, req.Code)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Warn("authorization code not found or already exchanged")
			return nil, ErrTokenInvalidGrant
		}
		return nil, err
	}

	if time.Now().After(code.ExpiresAt) {
		log.Warn("authorization code expired")
		return nil, ErrTokenInvalidGrant
	}

	// El canje debe calzar exactamente con lo registrado al emitir.
	if !strings.EqualFold(code.ClientID, client.ClientID) || code.RedirectURI != req.RedirectURI {
		log.Warn("client/redirect_uri mismatch on exchange",
			logger.ClientID(req.ClientID))
		return nil, ErrTokenInvalidGrant
	}

	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" || !VerifyPKCE(code.ChallengeMethod, code.CodeChallenge, req.CodeVerifier) {
			log.Warn("PKCE verification failed", logger.ClientID(req.ClientID))
			return nil, ErrTokenInvalidGrant
		}
	}

	log.Info("authorization code exchanged",
		logger.TenantID(code.TenantID), logger.UserID(code.UserID),
		logger.ClientID(client.ClientID))

	return &CodeIdentity{
		TenantID:  code.TenantID,
		UserID:    code.UserID,
		UserEmail: code.UserEmail,
		UserRole:  code.UserRole,
		ClientID:  client.ClientID,
	}, nil
}

// validatePKCEParams exige challenge y method juntos, con method conocido.
func validatePKCEParams(challenge, method string) error {
	if challenge == "" && method == "" {
		return nil
	}
	if challenge == "" || method == "" {
		return ErrInvalidPKCE
	}
	if !strings.EqualFold(method, PKCEMethodS256) && !strings.EqualFold(method, PKCEMethodPlain) {
		return ErrInvalidPKCE
	}
	return nil
}

// validateRedirectURI decide la confianza del redirect según el tipo de
// client. Mobile usa la allow-list estática de deep links del registro; web
// y api se validan dinámicamente contra los orígenes del tenant, con
// localhost permitido para desarrollo.
func (s *authorizeService) validateRedirectURI(ctx context.Context, client *repository.OAuthClient, tenantID, redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme == "" {
		return ErrInvalidRedirect
	}

	if client.Type == repository.ClientTypeMobile {
		for _, allowed := range client.RedirectURIs {
			if allowed == redirectURI {
				return nil
			}
		}
		return ErrInvalidRedirect
	}

	if isLocalhost(u) {
		return nil
	}

	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	trusted, err := s.cp.TrustedOrigins(ctx, tenantID)
	if err != nil {
		return ErrInvalidRedirect
	}
	for _, t := range trusted {
		if origin == t {
			return nil
		}
	}
	return ErrInvalidRedirect
}

func isLocalhost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Package oauth contiene los services del dominio OAuth2: emisión y canje
// de authorization codes, rotación de refresh tokens y registro de clients.
package oauth

import (
	"context"
	"errors"
	"time"
)

// AuthCodeTTL es la vida de un authorization code.
const AuthCodeTTL = 5 * time.Minute

// RefreshTokenBytes es el largo del refresh token opaco.
const RefreshTokenBytes = 64

// Errores del token endpoint (nombres OAuth2 estándar, RFC 6749).
var (
	ErrTokenInvalidRequest       = errors.New("invalid_request")
	ErrTokenInvalidClient        = errors.New("invalid_client")
	ErrTokenInvalidGrant         = errors.New("invalid_grant")
	ErrTokenUnauthorizedClient   = errors.New("unauthorized_client")
	ErrTokenUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrTokenServerError          = errors.New("server_error")
)

// Errores del flujo authorize.
var (
	ErrMissingParams   = errors.New("missing required parameters")
	ErrInvalidClient   = errors.New("invalid client")
	ErrInvalidRedirect = errors.New("redirect_uri not allowed")
	ErrInvalidPKCE     = errors.New("invalid pkce parameters")
	ErrCodeGenFailed   = errors.New("failed to generate auth code")
)

// TokenPair es el resultado de mintear o rotar tokens.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time

	// RefreshToken es el valor crudo; sólo viaja al caller, nunca al store.
	RefreshToken     string
	RefreshTokenHash string

	FamilyID   string
	Generation int
}

// ExpiresIn retorna los segundos de vida restantes del access token.
func (p *TokenPair) ExpiresIn() int64 {
	return int64(time.Until(p.AccessExpiresAt).Seconds())
}

// CreateTokenPairInput es la identidad a embeber en un par nuevo.
type CreateTokenPairInput struct {
	TenantID  string
	UserID    string
	Email     string
	Role      string
	SessionID string
	ClientID  string

	// FamilyID vacío inicia una familia nueva (login); no vacío continúa
	// una existente con la generación indicada.
	FamilyID   string
	Generation int
}

// TokenService emite, rota y revoca pares access/refresh.
type TokenService interface {
	// CreateTokenPair emite un access token firmado y un refresh token
	// opaco nuevo, persistiendo sólo el hash del refresh.
	CreateTokenPair(ctx context.Context, in CreateTokenPairInput) (*TokenPair, error)

	// Refresh rota un refresh token: exactamente una rotación por token.
	// La re-presentación de un token ya rotado revoca la familia entera y
	// la sesión dueña antes de rechazar.
	Refresh(ctx context.Context, rawRefreshToken, clientID string) (*TokenPair, error)

	// RevokeSessionTokens revoca todos los tokens de una sesión.
	RevokeSessionTokens(ctx context.Context, sessionID, reason string) error

	// RevokeAllUserTokens revoca todos los tokens de un usuario en el tenant.
	RevokeAllUserTokens(ctx context.Context, tenantID, userID, reason string) error
}

// AuthorizeRequest son los parámetros de POST /oauth2/authorize. El contexto
// de usuario llega ya autenticado (el core no verifica credenciales acá).
type AuthorizeRequest struct {
	ClientID            string
	TenantID            string
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string // "S256" | "plain" | ""

	UserID    string
	UserEmail string
	UserRole  string
}

// AuthorizeResult es el resultado de emitir un code.
type AuthorizeResult struct {
	Code        string
	State       string
	RedirectURI string
}

// ExchangeRequest son los parámetros del grant authorization_code.
type ExchangeRequest struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
	ClientSecret string
}

// AuthorizeService implementa la emisión y el canje de authorization codes.
type AuthorizeService interface {
	// Authorize valida client y redirect_uri y emite un code de un solo
	// uso ligado a la identidad presentada.
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)

	// Exchange consume el code atómicamente, verifica client, redirect y
	// PKCE, y retorna el snapshot de identidad para crear la sesión.
	Exchange(ctx context.Context, req ExchangeRequest) (*CodeIdentity, error)
}

// CodeIdentity es la identidad ligada a un code canjeado.
type CodeIdentity struct {
	TenantID  string
	UserID    string
	UserEmail string
	UserRole  string
	ClientID  string
}

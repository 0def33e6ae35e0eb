// Package oauth contiene los controllers de los endpoints OAuth2.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	httpx "github.com/vitrinapp/sso-core/internal/http"
	svc "github.com/vitrinapp/sso-core/internal/http/services/oauth"
	sess "github.com/vitrinapp/sso-core/internal/http/services/session"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
)

// tokenResponse es la respuesta estándar de RFC 6749 del token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// TokenController maneja POST /oauth2/token.
type TokenController struct {
	authorize svc.AuthorizeService
	tokens    svc.TokenService
	sessions  sess.Service
}

// NewTokenController crea el controller.
func NewTokenController(authorize svc.AuthorizeService, tokens svc.TokenService, sessions sess.Service) *TokenController {
	return &TokenController{authorize: authorize, tokens: tokens, sessions: sessions}
}

// Token maneja POST /oauth2/token.
// Grants soportados: authorization_code (PKCE) y refresh_token.
func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.token"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "only POST is allowed")
		return
	}

	// 64KB alcanzan de sobra para un form OAuth.
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		log.Warn("failed to parse form", logger.Err(err))
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid form data")
		return
	}

	grantType := strings.TrimSpace(r.PostForm.Get("grant_type"))
	log = log.With(logger.String("grant_type", grantType))

	var resp *tokenResponse
	var err error

	switch grantType {
	case "authorization_code":
		resp, err = c.handleAuthorizationCode(ctx, r)
	case "refresh_token":
		resp, err = c.handleRefreshToken(ctx, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant type not supported")
		return
	}

	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}
	writeTokenResponse(w, resp)
}

// handleAuthorizationCode canjea el code y crea la sesión del dispositivo:
// el primer par de tokens nace junto con la sesión.
func (c *TokenController) handleAuthorizationCode(ctx context.Context, r *http.Request) (*tokenResponse, error) {
	identity, err := c.authorize.Exchange(ctx, svc.ExchangeRequest{
		Code:         strings.TrimSpace(r.PostForm.Get("code")),
		ClientID:     strings.TrimSpace(r.PostForm.Get("client_id")),
		RedirectURI:  strings.TrimSpace(r.PostForm.Get("redirect_uri")),
		CodeVerifier: strings.TrimSpace(r.PostForm.Get("code_verifier")),
		ClientSecret: strings.TrimSpace(r.PostForm.Get("client_secret")),
	})
	if err != nil {
		return nil, err
	}

	res, err := c.sessions.CreateSession(ctx, sess.CreateSessionInput{
		TenantID:       identity.TenantID,
		UserID:         identity.UserID,
		Email:          identity.UserEmail,
		Role:           identity.UserRole,
		ClientID:       identity.ClientID,
		ClientApp:      strings.TrimSpace(r.PostForm.Get("client_app")),
		IPAddress:      httpx.ClientIP(r),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})
	if err != nil {
		return nil, svc.ErrTokenServerError
	}

	return &tokenResponse{
		AccessToken:  res.Tokens.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    res.Tokens.ExpiresIn(),
		RefreshToken: res.Tokens.RefreshToken,
		SessionID:    res.Session.ID,
	}, nil
}

func (c *TokenController) handleRefreshToken(ctx context.Context, r *http.Request) (*tokenResponse, error) {
	pair, err := c.tokens.Refresh(ctx,
		strings.TrimSpace(r.PostForm.Get("refresh_token")),
		strings.TrimSpace(r.PostForm.Get("client_id")),
	)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn(),
		RefreshToken: pair.RefreshToken,
	}, nil
}

func writeServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(err, svc.ErrTokenInvalidRequest):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing or invalid parameters")
	case errors.Is(err, svc.ErrTokenInvalidClient):
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
	case errors.Is(err, svc.ErrTokenInvalidGrant):
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "invalid or expired grant")
	case errors.Is(err, svc.ErrTokenUnauthorizedClient):
		writeOAuthError(w, http.StatusUnauthorized, "unauthorized_client", "client not authorized")
	case errors.Is(err, svc.ErrTokenUnsupportedGrantType):
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant type not supported")
	default:
		logger.From(ctx).Error("token endpoint error", logger.Err(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
	}
}

func writeOAuthError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	httpx.WriteError(w, status, code, desc)
}

func writeTokenResponse(w http.ResponseWriter, resp *tokenResponse) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	httpx.WriteJSON(w, http.StatusOK, resp)
}

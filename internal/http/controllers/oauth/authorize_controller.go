package oauth

import (
	"errors"
	"net/http"
	"strings"

	httpx "github.com/vitrinapp/sso-core/internal/http"
	svc "github.com/vitrinapp/sso-core/internal/http/services/oauth"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
)

type authorizeRequest struct {
	ClientID            string `json:"client_id"`
	TenantID            string `json:"tenant_id"`
	RedirectURI         string `json:"redirect_uri"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

type authorizeResponse struct {
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
	RedirectURI string `json:"redirect_uri"`
}

// AuthorizeController maneja POST /oauth2/authorize.
//
// A diferencia del authorize endpoint clásico por redirects, acá el flujo
// es API-first: el usuario ya está autenticado (bearer) y el endpoint
// devuelve el code en JSON para que el frontend haga el redirect.
type AuthorizeController struct {
	service svc.AuthorizeService
}

// NewAuthorizeController crea el controller.
func NewAuthorizeController(s svc.AuthorizeService) *AuthorizeController {
	return &AuthorizeController{service: s}
}

// Authorize maneja POST /oauth2/authorize.
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.authorize"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "only POST is allowed")
		return
	}

	claims := httpx.GetClaims(ctx)
	if claims == nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	var req authorizeRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}

	// El tenant sale del bearer: un code siempre queda ligado al tenant
	// del token autenticado, nunca al del body.
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		tenantID = claims.TenantID
	}
	if tenantID != claims.TenantID {
		log.Warn("authorize rejected: tenant mismatch",
			logger.TenantID(claims.TenantID), logger.String("requested_tenant", tenantID))
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "tenant_id does not match the authenticated tenant")
		return
	}

	res, err := c.service.Authorize(ctx, svc.AuthorizeRequest{
		ClientID:            strings.TrimSpace(req.ClientID),
		TenantID:            tenantID,
		RedirectURI:         strings.TrimSpace(req.RedirectURI),
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		UserID:              claims.Subject,
		UserEmail:           claims.Email,
		UserRole:            claims.Role,
	})
	if err != nil {
		c.writeAuthorizeError(w, err)
		log.Debug("authorize rejected", logger.Err(err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authorizeResponse{
		Code:        res.Code,
		State:       res.State,
		RedirectURI: res.RedirectURI,
	})
}

func (c *AuthorizeController) writeAuthorizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrMissingParams):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing required parameters")
	case errors.Is(err, svc.ErrInvalidClient):
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown or inactive client")
	case errors.Is(err, svc.ErrInvalidRedirect):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri not allowed")
	case errors.Is(err, svc.ErrInvalidPKCE):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid pkce parameters")
	default:
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
	}
}

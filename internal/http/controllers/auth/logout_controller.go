package auth

import (
	"errors"
	"net/http"

	httpx "github.com/vitrinapp/sso-core/internal/http"
	svc "github.com/vitrinapp/sso-core/internal/http/services/auth"
	"github.com/vitrinapp/sso-core/internal/http/services/session"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
)

// LogoutController maneja POST /v1/auth/logout y /v1/auth/logout-all.
// Ambos requieren bearer: la sesión y el usuario salen de las claims.
type LogoutController struct {
	service svc.Service
}

// NewLogoutController crea el controller.
func NewLogoutController(s svc.Service) *LogoutController {
	return &LogoutController{service: s}
}

// Logout termina la sesión del access token presentado.
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.logout"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "only POST is allowed")
		return
	}

	claims := httpx.GetClaims(ctx)
	if claims == nil || claims.SessionID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	if err := c.service.Logout(ctx, claims.SessionID); err != nil {
		// Logout de una sesión ya terminada es idempotente.
		if !errors.Is(err, session.ErrSessionNotFound) {
			log.Error("logout failed", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll termina todas las sesiones del usuario autenticado.
func (c *LogoutController) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.logout_all"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "only POST is allowed")
		return
	}

	claims := httpx.GetClaims(ctx)
	if claims == nil || claims.Subject == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	n, err := c.service.LogoutAll(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		log.Error("logout-all failed", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"sessions_ended": n})
}

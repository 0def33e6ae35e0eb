// Package session contiene los controllers de gestión de dispositivos.
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	httpx "github.com/vitrinapp/sso-core/internal/http"
	svc "github.com/vitrinapp/sso-core/internal/http/services/session"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
)

// sessionView es la proyección de una sesión para "manage devices".
// Nunca expone el refresh hash ni metadata interna.
type sessionView struct {
	ID           string    `json:"id"`
	ClientApp    string    `json:"client_app"`
	DeviceType   string    `json:"device_type,omitempty"`
	Browser      string    `json:"browser,omitempty"`
	OS           string    `json:"os,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
}

func toView(s *repository.Session, currentSessionID string) sessionView {
	v := sessionView{
		ID:           s.ID,
		ClientApp:    s.ClientApp,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		Current:      s.ID == currentSessionID,
	}
	if s.DeviceType != nil {
		v.DeviceType = *s.DeviceType
	}
	if s.Browser != nil {
		v.Browser = *s.Browser
	}
	if s.OS != nil {
		v.OS = *s.OS
	}
	if s.IPAddress != nil {
		v.IPAddress = *s.IPAddress
	}
	return v
}

// SessionsController maneja los endpoints de sesiones del usuario.
type SessionsController struct {
	service svc.Service
}

// NewSessionsController crea el controller.
func NewSessionsController(s svc.Service) *SessionsController {
	return &SessionsController{service: s}
}

// List maneja GET /v1/sessions: los dispositivos activos del usuario.
func (c *SessionsController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := httpx.GetClaims(ctx)
	if claims == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	sessions, err := c.service.GetUserSessions(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		logger.From(ctx).Error("failed to list sessions", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, toView(&sessions[i], claims.SessionID))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// Revoke maneja DELETE /v1/sessions/{id}: termina una sesión del usuario.
func (c *SessionsController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("sessions.revoke"))

	claims := httpx.GetClaims(ctx)
	if claims == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}

	// Sólo las sesiones propias. Un id ajeno responde lo mismo que uno
	// inexistente.
	mine, err := c.service.GetUserSessions(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		log.Error("session lookup failed", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
		return
	}
	owned := false
	for i := range mine {
		if mine[i].ID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}

	if err := c.service.EndSession(ctx, sessionID, svc.ReasonRevokedAdmin); err != nil && !errors.Is(err, svc.ErrSessionNotFound) {
		log.Error("session revoke failed", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Probe maneja GET /v1/sessions/probe: el chequeo de silent-SSO.
// Responde si el usuario autenticado tiene alguna sesión viva.
func (c *SessionsController) Probe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := httpx.GetClaims(ctx)
	if claims == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	active, err := c.service.HasActiveSession(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		logger.From(ctx).Error("session probe failed", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"active": active})
}

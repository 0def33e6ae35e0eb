// Package health expone liveness y readiness.
package health

import (
	"context"
	"net/http"
	"time"

	httpx "github.com/vitrinapp/sso-core/internal/http"
)

// Pinger es la dependencia mínima de readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller maneja /healthz y /readyz.
type Controller struct {
	db Pinger
}

// NewController crea el controller. db puede ser nil (sin store, siempre ready).
func NewController(db Pinger) *Controller {
	return &Controller{db: db}
}

// Healthz es el liveness probe: el proceso responde.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz es el readiness probe: el store responde.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	if c.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.db.Ping(ctx); err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Package router arma el árbol de rutas del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpx "github.com/vitrinapp/sso-core/internal/http"
	authctrl "github.com/vitrinapp/sso-core/internal/http/controllers/auth"
	healthctrl "github.com/vitrinapp/sso-core/internal/http/controllers/health"
	oauthctrl "github.com/vitrinapp/sso-core/internal/http/controllers/oauth"
	sessionctrl "github.com/vitrinapp/sso-core/internal/http/controllers/session"
	jwtx "github.com/vitrinapp/sso-core/internal/jwt"
	"github.com/vitrinapp/sso-core/internal/rate"
)

// Deps contiene los controllers y middlewares compartidos del router.
type Deps struct {
	Authorize *oauthctrl.AuthorizeController
	Token     *oauthctrl.TokenController
	Login     *authctrl.LoginController
	Logout    *authctrl.LogoutController
	Sessions  *sessionctrl.SessionsController
	Health    *healthctrl.Controller

	Issuer *jwtx.Issuer

	// RateLimiter por IP para endpoints públicos. Opcional.
	RateLimiter rate.Limiter

	// CORSOrigins habilita CORS cuando no está vacío.
	CORSOrigins []string

	// Metrics expone /metrics cuando es true.
	Metrics bool
}

// New construye el router con el middleware base aplicado a todo el árbol.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(httpx.WithRecover())
	r.Use(httpx.WithRequestID())
	r.Use(httpx.WithSecurityHeaders())
	if len(d.CORSOrigins) > 0 {
		r.Use(httpx.WithCORS(d.CORSOrigins))
	}
	r.Use(httpx.WithLogging())

	// Probes y métricas quedan fuera del rate limit.
	r.Get("/healthz", d.Health.Healthz)
	r.Get("/readyz", d.Health.Readyz)
	if d.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Endpoints OAuth2: no-store obligatorio, rate limit por IP.
	r.Group(func(g chi.Router) {
		g.Use(httpx.WithNoStore())
		if d.RateLimiter != nil {
			g.Use(httpx.WithRateLimit(d.RateLimiter))
		}

		g.Post("/oauth2/token", d.Token.Token)
		g.Post("/v1/auth/login", d.Login.Login)

		// Authorize exige un usuario ya autenticado.
		g.Group(func(a chi.Router) {
			a.Use(httpx.RequireAuth(d.Issuer))
			a.Post("/oauth2/authorize", d.Authorize.Authorize)
		})
	})

	// Gestión de sesiones y logout: siempre detrás de bearer.
	r.Group(func(g chi.Router) {
		g.Use(httpx.RequireAuth(d.Issuer))

		g.Post("/v1/auth/logout", d.Logout.Logout)
		g.Post("/v1/auth/logout-all", d.Logout.LogoutAll)

		g.Get("/v1/sessions", d.Sessions.List)
		g.Get("/v1/sessions/probe", d.Sessions.Probe)
		g.Delete("/v1/sessions/{id}", d.Sessions.Revoke)
	})

	return r
}

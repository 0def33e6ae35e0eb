package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth-related Prometheus metrics. These are defined in a standalone package to avoid
// import cycles between service and HTTP packages.

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_login_attempts_total",
		Help: "Intentos de login por resultado",
	}, []string{"outcome"})

	LoginLockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_login_lockouts_total",
		Help: "Cuentas bloqueadas por exceso de fallos",
	})

	IPBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_ip_blocks_total",
		Help: "Bloqueos globales de IP insertados",
	})

	TokenRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_token_rotations_total",
		Help: "Rotaciones de refresh token exitosas",
	})

	TokenReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_token_replays_total",
		Help: "Reusos de refresh token detectados (familia revocada)",
	})

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_sessions_created_total",
		Help: "Sesiones creadas",
	})

	SessionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_sessions_evicted_total",
		Help: "Sesiones desalojadas por exceder el máximo por usuario",
	})

	AuthCodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_auth_codes_issued_total",
		Help: "Authorization codes emitidos",
	})
)

// Register registers the auth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		LoginAttempts, LoginLockouts, IPBlocks,
		TokenRotations, TokenReplays,
		SessionsCreated, SessionsEvicted, AuthCodesIssued,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

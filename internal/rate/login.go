package rate

import (
	"context"
	"time"

	"github.com/vitrinapp/sso-core/internal/controlplane"
	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/metrics"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	"github.com/vitrinapp/sso-core/internal/util"
)

// Motivos de rechazo de un intento de login.
const (
	ReasonIPBlocked     = "ip_blocked"
	ReasonAccountLocked = "account_locked"
)

// MaxProgressiveDelay es el tope del delay progresivo.
const MaxProgressiveDelay = 30 * time.Second

// CheckResult es la decisión sobre un intento de login.
type CheckResult struct {
	Allowed           bool
	Reason            string
	Delay             time.Duration
	AttemptsRemaining int
	LockoutUntil      *time.Time
}

// LoginDeps contiene las dependencias del limiter de login.
type LoginDeps struct {
	Attempts repository.LoginAttemptRepository
	Blocked  repository.BlockedIPRepository
	Policy   controlplane.Service

	// IPFailures es el contador de fallos por IP (ventana fija, Redis).
	// Opcional: cuando es nil se cuenta contra el historial del store.
	IPFailures Limiter

	// Límite global anti-DDoS, independiente del lockout por cuenta.
	GlobalMaxFailures int
	GlobalWindow      time.Duration
	GlobalBlockTTL    time.Duration
}

// LoginLimiter decide si un intento de login está permitido, calculando
// lockouts y delays progresivos a partir del historial de intentos.
//
// No guarda contadores propios: cada chequeo re-consulta el historial, así
// que no necesita locks a costa de una lectura por intento.
type LoginLimiter struct {
	attempts repository.LoginAttemptRepository
	blocked  repository.BlockedIPRepository
	policy   controlplane.Service

	ipFailures     Limiter
	globalMax      int
	globalWindow   time.Duration
	globalBlockTTL time.Duration
}

// NewLoginLimiter crea el limiter.
func NewLoginLimiter(d LoginDeps) *LoginLimiter {
	if d.GlobalMaxFailures <= 0 {
		d.GlobalMaxFailures = 100
	}
	if d.GlobalWindow <= 0 {
		d.GlobalWindow = time.Hour
	}
	if d.GlobalBlockTTL <= 0 {
		d.GlobalBlockTTL = 24 * time.Hour
	}
	return &LoginLimiter{
		attempts:       d.Attempts,
		blocked:        d.Blocked,
		policy:         d.Policy,
		ipFailures:     d.IPFailures,
		globalMax:      d.GlobalMaxFailures,
		globalWindow:   d.GlobalWindow,
		globalBlockTTL: d.GlobalBlockTTL,
	}
}

// CheckLoginRate decide si el intento (email, ip, tenant) está permitido.
func (l *LoginLimiter) CheckLoginRate(ctx context.Context, email, ip, tenantID string) (*CheckResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("rate.check_login"))

	// 1. IP bloqueada (global o del tenant) rechaza de entrada.
	block, err := l.blocked.Find(ctx, ip, tenantID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, err
	}
	if block != nil {
		until := block.ExpiresAt
		return &CheckResult{
			Allowed:      false,
			Reason:       ReasonIPBlocked,
			LockoutUntil: &until,
		}, nil
	}

	// 2. Política del tenant (o defaults).
	cfg := l.policy.SecurityConfig(ctx, tenantID)

	// 3. Fallos recientes para (email, ip, tenant) dentro de la ventana.
	window := time.Duration(cfg.LockoutMinutes) * time.Minute
	failed, err := l.attempts.CountFailures(ctx, tenantID, email, ip, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}

	// 4. Lockout alcanzado.
	if failed >= cfg.MaxLoginAttempts {
		until := time.Now().Add(window)
		log.Warn("login locked out",
			logger.Email(util.MaskEmail(email)), logger.ClientIP(ip), logger.TenantID(tenantID),
			logger.Int("failed_attempts", failed),
		)
		metrics.LoginLockouts.Inc()
		return &CheckResult{
			Allowed:           false,
			Reason:            ReasonAccountLocked,
			AttemptsRemaining: 0,
			LockoutUntil:      &until,
		}, nil
	}

	// 5. Permitido, con delay progresivo opcional.
	res := &CheckResult{
		Allowed:           true,
		AttemptsRemaining: cfg.MaxLoginAttempts - failed,
	}
	if cfg.EnableProgressiveDelay {
		res.Delay = ProgressiveDelayFor(failed)
	}
	return res, nil
}

// CheckGlobalIPRate aplica el tope global de fallos por IP a través de todos
// los tenants. Cuando se excede, inserta un bloqueo global de 24 horas.
// Es protección anti-DDoS, independiente del lockout por cuenta.
func (l *LoginLimiter) CheckGlobalIPRate(ctx context.Context, ip string) (bool, error) {
	var hits int64
	var err error

	if l.ipFailures != nil {
		hits, err = l.ipFailures.Hits(ctx, "ipfail:"+ip)
	} else {
		var n int
		n, err = l.attempts.CountFailuresByIP(ctx, ip, time.Now().Add(-l.globalWindow))
		hits = int64(n)
	}
	if err != nil {
		return false, err
	}

	if hits < int64(l.globalMax) {
		return true, nil
	}

	now := time.Now()
	insErr := l.blocked.Insert(ctx, repository.BlockedIP{
		IPAddress: ip,
		Scope:     repository.BlockScopeGlobal,
		Reason:    "global_ip_rate_exceeded",
		CreatedAt: now,
		ExpiresAt: now.Add(l.globalBlockTTL),
	})
	if insErr != nil {
		logger.From(ctx).Error("failed to insert global ip block",
			logger.ClientIP(ip), logger.Err(insErr))
	} else {
		logger.From(ctx).Warn("global ip block inserted",
			logger.ClientIP(ip), logger.Int("failures", int(hits)))
		metrics.IPBlocks.Inc()
	}
	return false, nil
}

// LogAttempt registra el intento en el historial (siempre, éxito o fallo) y
// alimenta el contador global de fallos por IP.
func (l *LoginLimiter) LogAttempt(ctx context.Context, attempt repository.LoginAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	if err := l.attempts.Insert(ctx, attempt); err != nil {
		return err
	}

	if attempt.Success {
		metrics.LoginAttempts.WithLabelValues("success").Inc()
	} else {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		if l.ipFailures != nil {
			if _, err := l.ipFailures.Allow(ctx, "ipfail:"+attempt.IPAddress); err != nil {
				logger.From(ctx).Warn("ip failure counter unavailable", logger.Err(err))
			}
		}
	}
	return nil
}

// ProgressiveDelayFor calcula el delay para el siguiente intento dado el
// número de fallos previos en la ventana: 0 para <=1 fallo, después se
// duplica desde 1s hasta el tope de 30s.
func ProgressiveDelayFor(failed int) time.Duration {
	if failed <= 1 {
		return 0
	}
	exp := failed - 2
	if exp > 5 {
		return MaxProgressiveDelay
	}
	d := time.Duration(1<<uint(exp)) * time.Second
	if d > MaxProgressiveDelay {
		d = MaxProgressiveDelay
	}
	return d
}

// ApplyProgressiveDelay bloquea el request actual durante el delay indicado.
// Es una espera deliberada por-request (frena guessing automatizado sin
// rechazar el intento); nunca un lock compartido.
func ApplyProgressiveDelay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Package auth orquesta el flujo de login: rate limiting, verificación de
// credenciales, auditoría de intentos y creación de la sesión.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitrinapp/sso-core/internal/device"
	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/http/services/session"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	"github.com/vitrinapp/sso-core/internal/rate"
	"github.com/vitrinapp/sso-core/internal/util"
)

// Motivos de fallo que quedan en el historial de intentos.
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureRateLimited        = "rate_limited"
)

var (
	// ErrInvalidCredentials cubre tanto usuario inexistente como password
	// incorrecto: el caller nunca distingue cuál.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RateLimitedError indica que el intento fue rechazado antes de verificar
// credenciales, con el motivo y el fin del bloqueo si se conoce.
type RateLimitedError struct {
	Reason string
	Until  *time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("login rate limited: %s", e.Reason)
}

// Identity es la identidad confirmada por el verificador de credenciales.
type Identity struct {
	UserID string
	Email  string
	Role   string
	Name   string
}

// CredentialVerifier valida credenciales contra el directorio de usuarios.
// El core no guarda usuarios; la verificación se inyecta.
type CredentialVerifier interface {
	// Verify retorna la identidad si las credenciales son válidas.
	// Retorna ErrInvalidCredentials tanto para usuario inexistente como
	// para password incorrecto.
	Verify(ctx context.Context, tenantID, email, password string) (*Identity, error)
}

// LoginInput son los datos de un intento de login.
type LoginInput struct {
	TenantID string
	Email    string
	Password string

	ClientID  string
	ClientApp string

	IPAddress      string
	UserAgent      string
	AcceptLanguage string
}

// Service expone login y logout.
type Service interface {
	// Login ejecuta el flujo completo: rate limiting, delay progresivo,
	// verificación de credenciales, auditoría y creación de sesión.
	Login(ctx context.Context, in LoginInput) (*session.CreateSessionResult, error)

	// Logout termina una sesión.
	Logout(ctx context.Context, sessionID string) error

	// LogoutAll termina todas las sesiones del usuario.
	LogoutAll(ctx context.Context, tenantID, userID string) (int, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Verifier CredentialVerifier
	Limiter  *rate.LoginLimiter
	Sessions session.Service
}

type service struct {
	verifier CredentialVerifier
	limiter  *rate.LoginLimiter
	sessions session.Service
}

// New crea el auth service.
func New(d Deps) Service {
	return &service{
		verifier: d.Verifier,
		limiter:  d.Limiter,
		sessions: d.Sessions,
	}
}

func (s *service) Login(ctx context.Context, in LoginInput) (*session.CreateSessionResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"), logger.Op("auth.login"),
		logger.TenantID(in.TenantID), logger.ClientIP(in.IPAddress),
	)

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.TenantID == "" || in.Email == "" || in.Password == "" {
		return nil, repository.ErrInvalidInput
	}

	// 1. Tope global anti-DDoS por IP, a través de todos los tenants.
	allowed, err := s.limiter.CheckGlobalIPRate(ctx, in.IPAddress)
	if err != nil {
		return nil, err
	}
	if !allowed {
		log.Warn("login rejected by global ip rate")
		return nil, &RateLimitedError{Reason: rate.ReasonIPBlocked}
	}

	// 2. Lockout por cuenta e IPs bloqueadas.
	check, err := s.limiter.CheckLoginRate(ctx, in.Email, in.IPAddress, in.TenantID)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		log.Warn("login rejected by rate limiter", logger.Reason(check.Reason))
		return nil, &RateLimitedError{Reason: check.Reason, Until: check.LockoutUntil}
	}

	// 3. Delay progresivo: frena el guessing sin rechazar el intento.
	rate.ApplyProgressiveDelay(ctx, check.Delay)

	// 4. Verificación de credenciales. Un fallo del directorio (timeout,
	// 5xx) no es un intento fallido: se propaga sin tocar el historial,
	// para que una caída del upstream no acumule lockouts.
	identity, verr := s.verifier.Verify(ctx, in.TenantID, in.Email, in.Password)
	if verr != nil && !errors.Is(verr, ErrInvalidCredentials) {
		log.Error("credential verification unavailable", logger.Err(verr))
		return nil, fmt.Errorf("verify credentials: %w", verr)
	}

	// 5. Auditoría: el resultado de la verificación queda registrado
	// siempre, éxito o fallo.
	info := device.Parse(in.UserAgent)
	attempt := repository.LoginAttempt{
		TenantID:   in.TenantID,
		Email:      in.Email,
		IPAddress:  in.IPAddress,
		Success:    verr == nil,
		UserAgent:  in.UserAgent,
		DeviceType: info.Type,
		Browser:    info.Browser,
		OS:         info.OS,
	}
	if verr != nil {
		attempt.FailureReason = FailureInvalidCredentials
	}
	if lerr := s.limiter.LogAttempt(ctx, attempt); lerr != nil {
		log.Error("failed to record login attempt", logger.Err(lerr))
	}

	if verr != nil {
		log.Info("login failed", logger.Email(util.MaskEmail(in.Email)))
		return nil, ErrInvalidCredentials
	}

	// 6. Sesión nueva con su primer par de tokens.
	res, err := s.sessions.CreateSession(ctx, session.CreateSessionInput{
		TenantID:       in.TenantID,
		UserID:         identity.UserID,
		Email:          identity.Email,
		Role:           identity.Role,
		ClientApp:      in.ClientApp,
		ClientID:       in.ClientID,
		IPAddress:      in.IPAddress,
		UserAgent:      in.UserAgent,
		AcceptLanguage: in.AcceptLanguage,
	})
	if err != nil {
		log.Error("failed to create session after login", logger.Err(err))
		return nil, err
	}

	log.Info("login succeeded",
		logger.UserID(identity.UserID), logger.SessionID(res.Session.ID))
	return res, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.EndSession(ctx, sessionID, session.ReasonLogout)
}

func (s *service) LogoutAll(ctx context.Context, tenantID, userID string) (int, error) {
	return s.sessions.EndAllUserSessions(ctx, tenantID, userID, session.ReasonLogoutAll)
}

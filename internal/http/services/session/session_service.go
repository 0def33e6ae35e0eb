// Package session implementa el ciclo de vida de sesiones multi-dispositivo.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrinapp/sso-core/internal/controlplane"
	"github.com/vitrinapp/sso-core/internal/device"
	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/http/services/oauth"
	"github.com/vitrinapp/sso-core/internal/metrics"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
)

// Motivos de revocación de sesiones.
const (
	ReasonLogout       = "logout"
	ReasonLogoutAll    = "logout_all"
	ReasonSessionLimit = "session_limit_exceeded"
	ReasonRevokedAdmin = "revoked_by_admin"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired or revoked")
)

// CreateSessionInput es el contexto de un login exitoso.
type CreateSessionInput struct {
	TenantID  string
	UserID    string
	Email     string
	Role      string
	ClientApp string
	ClientID  string

	IPAddress      string
	UserAgent      string
	AcceptLanguage string
}

// CreateSessionResult es la sesión creada junto con su primer par de tokens.
type CreateSessionResult struct {
	Session *repository.Session
	Tokens  *oauth.TokenPair
}

// Service maneja la creación, consulta y terminación de sesiones.
type Service interface {
	// CreateSession crea una sesión nueva aplicando el tope de sesiones
	// concurrentes del tenant (desaloja las más viejas por last_activity).
	CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error)

	// GetUserSessions lista las sesiones activas de un usuario.
	GetUserSessions(ctx context.Context, tenantID, userID string) ([]repository.Session, error)

	// GetTenantSessions lista las sesiones activas de un tenant.
	GetTenantSessions(ctx context.Context, tenantID string) ([]repository.Session, error)

	// UpdateSessionActivity registra actividad en la sesión.
	UpdateSessionActivity(ctx context.Context, sessionID string) error

	// ValidateSession obtiene la sesión y registra actividad en un solo
	// paso. Retorna ErrSessionExpired si ya no es utilizable.
	ValidateSession(ctx context.Context, sessionID string) (*repository.Session, error)

	// EndSession revoca la sesión y su familia de tokens.
	EndSession(ctx context.Context, sessionID, reason string) error

	// EndAllUserSessions revoca todas las sesiones y tokens del usuario.
	// Retorna cuántas sesiones se revocaron.
	EndAllUserSessions(ctx context.Context, tenantID, userID, reason string) (int, error)

	// HasActiveSession es el probe de silent-SSO.
	HasActiveSession(ctx context.Context, tenantID, userID string) (bool, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Sessions     repository.SessionRepository
	Tokens       oauth.TokenService
	TokenRepo    repository.TokenRepository
	ControlPlane controlplane.Service
}

type service struct {
	sessions repository.SessionRepository
	tokens   oauth.TokenService
	tokRepo  repository.TokenRepository
	cp       controlplane.Service
}

// New crea el session service.
func New(d Deps) Service {
	return &service{
		sessions: d.Sessions,
		tokens:   d.Tokens,
		tokRepo:  d.TokenRepo,
		cp:       d.ControlPlane,
	}
}

func (s *service) CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"), logger.Op("session.create"),
		logger.TenantID(in.TenantID), logger.UserID(in.UserID),
	)

	if in.TenantID == "" || in.UserID == "" || in.Email == "" {
		return nil, repository.ErrInvalidInput
	}
	if in.ClientApp == "" {
		in.ClientApp = repository.ClientAppWeb
	}

	cfg := s.cp.SecurityConfig(ctx, in.TenantID)

	// Tope de dispositivos: desalojar las sesiones más viejas por
	// last_activity hasta dejar lugar para la nueva. Best-effort bajo
	// logins concurrentes.
	if err := s.evictOverflow(ctx, in.TenantID, in.UserID, cfg.MaxSessionsPerUser, log); err != nil {
		return nil, err
	}

	info := device.Parse(in.UserAgent)
	fingerprint := device.Fingerprint(in.UserAgent, in.IPAddress, in.AcceptLanguage)

	sessionID := uuid.NewString()
	now := time.Now()
	expiresAt := now.Add(time.Duration(cfg.SessionTimeoutHours) * time.Hour)

	// Los tokens se mintean antes de persistir la sesión porque la fila
	// guarda el hash del refresh vigente.
	pair, err := s.tokens.CreateTokenPair(ctx, oauth.CreateTokenPairInput{
		TenantID:  in.TenantID,
		UserID:    in.UserID,
		Email:     in.Email,
		Role:      in.Role,
		SessionID: sessionID,
		ClientID:  in.ClientID,
	})
	if err != nil {
		log.Error("failed to mint initial token pair", logger.Err(err))
		return nil, err
	}

	sess, err := s.sessions.Create(ctx, repository.CreateSessionInput{
		ID:                sessionID,
		TenantID:          in.TenantID,
		UserID:            in.UserID,
		UserEmail:         in.Email,
		UserRole:          in.Role,
		ClientApp:         in.ClientApp,
		IPAddress:         in.IPAddress,
		UserAgent:         in.UserAgent,
		DeviceType:        info.Type,
		Browser:           info.Browser,
		OS:                info.OS,
		DeviceFingerprint: fingerprint,
		RefreshTokenHash:  pair.RefreshTokenHash,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		// Limpieza compensatoria: sin sesión dueña la familia recién
		// creada quedaría huérfana.
		if derr := s.tokRepo.DeleteFamily(ctx, pair.FamilyID); derr != nil {
			log.Error("orphaned token family cleanup failed",
				logger.FamilyID(pair.FamilyID), logger.Err(derr))
		}
		log.Error("failed to persist session", logger.Err(err))
		return nil, err
	}

	metrics.SessionsCreated.Inc()
	log.Info("session created",
		logger.SessionID(sess.ID),
		logger.String("client_app", sess.ClientApp),
	)

	return &CreateSessionResult{Session: sess, Tokens: pair}, nil
}

// evictOverflow revoca las sesiones más viejas hasta que quede lugar para
// una nueva dentro del máximo configurado.
func (s *service) evictOverflow(ctx context.Context, tenantID, userID string, maxSessions int, log *zap.Logger) error {
	if maxSessions <= 0 {
		maxSessions = repository.DefaultMaxSessionsPerUser
	}

	active, err := s.sessions.ListActiveByUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if len(active) < maxSessions {
		return nil
	}

	// ListActiveByUser ordena por last_activity ascendente, así que la
	// cabeza de la lista son las sesiones más frías.
	overflow := len(active) - maxSessions + 1
	for i := 0; i < overflow; i++ {
		victim := active[i]
		if err := s.sessions.Revoke(ctx, victim.ID, ReasonSessionLimit); err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return err
		}
		if _, err := s.tokRepo.RevokeBySession(ctx, victim.ID, ReasonSessionLimit); err != nil {
			log.Warn("failed to revoke tokens of evicted session",
				logger.SessionID(victim.ID), logger.Err(err))
		}
		metrics.SessionsEvicted.Inc()
		log.Info("evicted oldest session", logger.SessionID(victim.ID))
	}
	return nil
}

func (s *service) GetUserSessions(ctx context.Context, tenantID, userID string) ([]repository.Session, error) {
	if tenantID == "" || userID == "" {
		return nil, repository.ErrInvalidInput
	}
	return s.sessions.ListActiveByUser(ctx, tenantID, userID)
}

func (s *service) GetTenantSessions(ctx context.Context, tenantID string) ([]repository.Session, error) {
	if tenantID == "" {
		return nil, repository.ErrInvalidInput
	}
	return s.sessions.ListActiveByTenant(ctx, tenantID)
}

func (s *service) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return repository.ErrInvalidInput
	}
	err := s.sessions.UpdateActivity(ctx, sessionID, time.Now())
	if repository.IsNotFound(err) {
		return ErrSessionNotFound
	}
	return err
}

func (s *service) ValidateSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	if sessionID == "" {
		return nil, repository.ErrInvalidInput
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !sess.Alive(time.Now()) {
		return nil, ErrSessionExpired
	}
	if err := s.sessions.UpdateActivity(ctx, sessionID, time.Now()); err != nil && !repository.IsNotFound(err) {
		logger.From(ctx).Warn("failed to touch session activity",
			logger.Layer("service"), logger.SessionID(sessionID), logger.Err(err))
	}
	return sess, nil
}

func (s *service) EndSession(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return repository.ErrInvalidInput
	}
	if reason == "" {
		reason = ReasonLogout
	}
	log := logger.From(ctx).With(
		logger.Layer("service"), logger.Op("session.end"),
		logger.SessionID(sessionID),
	)

	if err := s.sessions.Revoke(ctx, sessionID, reason); err != nil {
		if repository.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return err
	}
	if _, err := s.tokRepo.RevokeBySession(ctx, sessionID, reason); err != nil {
		log.Warn("failed to revoke session token family", logger.Err(err))
	}
	log.Info("session ended", logger.String("reason", reason))
	return nil
}

func (s *service) EndAllUserSessions(ctx context.Context, tenantID, userID, reason string) (int, error) {
	if tenantID == "" || userID == "" {
		return 0, repository.ErrInvalidInput
	}
	if reason == "" {
		reason = ReasonLogoutAll
	}
	log := logger.From(ctx).With(
		logger.Layer("service"), logger.Op("session.end_all"),
		logger.TenantID(tenantID), logger.UserID(userID),
	)

	n, err := s.sessions.RevokeAllByUser(ctx, tenantID, userID, reason)
	if err != nil {
		return 0, err
	}
	if _, err := s.tokRepo.RevokeAllByUser(ctx, tenantID, userID, reason); err != nil {
		log.Warn("failed to revoke user token families", logger.Err(err))
	}
	log.Info("all sessions ended", logger.Int("count", n), logger.String("reason", reason))
	return n, nil
}

func (s *service) HasActiveSession(ctx context.Context, tenantID, userID string) (bool, error) {
	if tenantID == "" || userID == "" {
		return false, repository.ErrInvalidInput
	}
	return s.sessions.HasActiveSession(ctx, tenantID, userID)
}

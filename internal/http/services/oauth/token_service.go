package oauth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	jwtx "github.com/vitrinapp/sso-core/internal/jwt"
	"github.com/vitrinapp/sso-core/internal/metrics"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	tokens "github.com/vitrinapp/sso-core/internal/security/token"
)

// Motivos de revocación que quedan persistidos en tokens y sesiones.
const (
	ReasonTokenReuse     = "token_reuse_detected"
	ReasonClientMismatch = "client_mismatch"
)

// TokenDeps contiene las dependencias del token service.
type TokenDeps struct {
	Tokens     repository.TokenRepository
	Sessions   repository.SessionRepository
	Issuer     *jwtx.Issuer
	RefreshTTL time.Duration
}

type tokenService struct {
	tokens     repository.TokenRepository
	sessions   repository.SessionRepository
	issuer     *jwtx.Issuer
	refreshTTL time.Duration
}

// NewTokenService crea el token service.
func NewTokenService(d TokenDeps) TokenService {
	ttl := d.RefreshTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &tokenService{
		tokens:     d.Tokens,
		sessions:   d.Sessions,
		issuer:     d.Issuer,
		refreshTTL: ttl,
	}
}

func (s *tokenService) CreateTokenPair(ctx context.Context, in CreateTokenPairInput) (*TokenPair, error) {
	access, exp, _, err := s.issuer.IssueAccess(jwtx.AccessTokenInput{
		TenantID:  in.TenantID,
		UserID:    in.UserID,
		Email:     in.Email,
		Role:      in.Role,
		SessionID: in.SessionID,
		ClientID:  in.ClientID,
	})
	if err != nil {
		return nil, err
	}

	rawRefresh, err := tokens.GenerateOpaqueToken(RefreshTokenBytes)
	if err != nil {
		return nil, err
	}
	hash := tokens.SHA256Base64URL(rawRefresh)

	familyID := in.FamilyID
	generation := in.Generation
	if familyID == "" {
		familyID = uuid.NewString()
		generation = 1
	}
	if generation < 1 {
		generation = 1
	}

	if _, err := s.tokens.Create(ctx, repository.CreateRefreshTokenInput{
		TokenHash:  hash,
		SessionID:  in.SessionID,
		TenantID:   in.TenantID,
		UserID:     in.UserID,
		ClientID:   in.ClientID,
		FamilyID:   familyID,
		Generation: generation,
		ExpiresAt:  time.Now().Add(s.refreshTTL),
	}); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     rawRefresh,
		RefreshTokenHash: hash,
		FamilyID:         familyID,
		Generation:       generation,
	}, nil
}

// Refresh implementa el protocolo de rotación. Tres salidas:
//   - hash desconocido: invalid_grant, sin efectos.
//   - hash de un token ya usado: replay. Se revoca la familia completa y la
//     sesión dueña con motivo token_reuse_detected, y se rechaza genérico.
//   - token consumible: Consume gana la carrera atómica, se emite la
//     generación siguiente en la misma familia y se actualiza la sesión.
func (s *tokenService) Refresh(ctx context.Context, rawRefreshToken, clientID string) (*TokenPair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.refresh"))

	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	clientID = strings.TrimSpace(clientID)
	if rawRefreshToken == "" || clientID == "" {
		return nil, ErrTokenInvalidRequest
	}

	now := time.Now()
	hash := tokens.SHA256Base64URL(rawRefreshToken)

	consumed, err := s.tokens.Consume(ctx, hash, now)
	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, err
		}
		return nil, s.rejectUnconsumable(ctx, hash)
	}

	log = log.With(
		logger.TenantID(consumed.TenantID),
		logger.UserID(consumed.UserID),
		logger.FamilyID(consumed.FamilyID),
		logger.Generation(consumed.Generation),
	)

	// Un refresh token sólo sirve para el client que lo recibió.
	if !strings.EqualFold(clientID, consumed.ClientID) {
		log.Warn("client mismatch on refresh, revoking family",
			logger.ClientID(clientID), logger.Reason(ReasonClientMismatch))
		if _, rerr := s.tokens.RevokeFamily(ctx, consumed.FamilyID, ReasonClientMismatch); rerr != nil {
			log.Error("family revocation failed", logger.Err(rerr))
		}
		return nil, ErrTokenInvalidGrant
	}

	sess, err := s.sessions.Get(ctx, consumed.SessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTokenInvalidGrant
		}
		return nil, err
	}
	if !sess.Alive(now) {
		log.Debug("session no longer alive")
		return nil, ErrTokenInvalidGrant
	}

	pair, err := s.CreateTokenPair(ctx, CreateTokenPairInput{
		TenantID:   consumed.TenantID,
		UserID:     consumed.UserID,
		Email:      sess.UserEmail,
		Role:       sess.UserRole,
		SessionID:  consumed.SessionID,
		ClientID:   consumed.ClientID,
		FamilyID:   consumed.FamilyID,
		Generation: consumed.Generation + 1,
	})
	if err != nil {
		log.Error("failed to mint rotated pair", logger.Err(err))
		return nil, ErrTokenServerError
	}

	// El hash en la sesión es informativo (manage devices); la rotación ya
	// quedó persistida en refresh_tokens y fallarla acá dejaría al cliente
	// sin el token nuevo, convirtiendo su retry legítimo en un replay. Se
	// acepta el hash viejo en la sesión hasta la próxima rotación.
	if err := s.sessions.UpdateRefreshHash(ctx, consumed.SessionID, pair.RefreshTokenHash, now); err != nil {
		log.Warn("failed to update session refresh hash", logger.Err(err))
	}

	metrics.TokenRotations.Inc()
	log.Info("refresh token rotated")
	return pair, nil
}

// rejectUnconsumable distingue un hash desconocido de un replay. El caller
// recibe siempre el mismo rechazo genérico; la revocación defensiva corre
// antes de responder, sin delatarse.
func (s *tokenService) rejectUnconsumable(ctx context.Context, hash string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.refresh"))

	prev, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		// Nunca emitido, o ya purgado.
		return ErrTokenInvalidGrant
	}

	if prev.UsedAt != nil && prev.RevokedAt == nil {
		// Segunda presentación de un token ya rotado: token clonado o robado.
		log.Warn("refresh token replay detected, revoking family and session",
			logger.TenantID(prev.TenantID),
			logger.UserID(prev.UserID),
			logger.FamilyID(prev.FamilyID),
			logger.Generation(prev.Generation),
			logger.Reason(ReasonTokenReuse),
		)
		if _, rerr := s.tokens.RevokeFamily(ctx, prev.FamilyID, ReasonTokenReuse); rerr != nil {
			log.Error("family revocation failed", logger.Err(rerr))
		}
		if rerr := s.sessions.Revoke(ctx, prev.SessionID, ReasonTokenReuse); rerr != nil && !repository.IsNotFound(rerr) {
			log.Error("session revocation failed", logger.Err(rerr))
		}
		metrics.TokenReplays.Inc()
	}

	// Revocado o expirado: mismo rechazo, sin efectos adicionales.
	return ErrTokenInvalidGrant
}

func (s *tokenService) RevokeSessionTokens(ctx context.Context, sessionID, reason string) error {
	_, err := s.tokens.RevokeBySession(ctx, sessionID, reason)
	return err
}

func (s *tokenService) RevokeAllUserTokens(ctx context.Context, tenantID, userID, reason string) error {
	_, err := s.tokens.RevokeAllByUser(ctx, tenantID, userID, reason)
	return err
}

// Package jwt emite y valida access tokens firmados con HS256.
package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLen es el largo mínimo del secret de firma en bytes.
const MinSecretLen = 32

var (
	ErrSecretTooShort = errors.New("jwt secret too short")
	ErrInvalidToken   = errors.New("invalid_token")
	ErrTokenExpired   = errors.New("token_expired")
)

// AccessClaims es el claim set de un access token.
type AccessClaims struct {
	TenantID  string `json:"tid"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	ClientID  string `json:"cid"`
	jwtv5.RegisteredClaims
}

// Issuer firma access tokens con un secret compartido.
type Issuer struct {
	Iss       string
	secret    []byte
	AccessTTL time.Duration // TTL por defecto (15m)
}

// NewIssuer crea un issuer. Falla si el secret es más corto que MinSecretLen:
// un secret débil es un error fatal de configuración.
func NewIssuer(iss, secret string, accessTTL time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrSecretTooShort
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &Issuer{
		Iss:       iss,
		secret:    []byte(secret),
		AccessTTL: accessTTL,
	}, nil
}

// AccessTokenInput contiene la identidad a embeber en un access token.
type AccessTokenInput struct {
	TenantID  string
	UserID    string
	Email     string
	Role      string
	SessionID string
	ClientID  string
}

// IssueAccess emite un access token firmado. Retorna el token, su expiración
// y el jti generado.
func (i *Issuer) IssueAccess(in AccessTokenInput) (string, time.Time, string, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)
	jti := uuid.NewString()

	claims := AccessClaims{
		TenantID:  in.TenantID,
		Email:     in.Email,
		Role:      in.Role,
		SessionID: in.SessionID,
		ClientID:  in.ClientID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   in.UserID,
			ID:        jti,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, "", err
	}
	return signed, exp, jti, nil
}

// ValidateAccess valida firma y expiración de un access token. No toca el
// store: es un chequeo puro, sin efectos, apto para el hot path de
// autorización de cada request.
func (i *Issuer) ValidateAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	tok, err := jwtv5.ParseWithClaims(token, &claims,
		func(t *jwtv5.Token) (any, error) { return i.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(i.Iss),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

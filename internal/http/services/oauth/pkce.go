package oauth

import (
	"strings"

	tokens "github.com/vitrinapp/sso-core/internal/security/token"
)

// Métodos PKCE soportados.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// PKCEPair es un par verifier/challenge para el flujo authorization-code.
type PKCEPair struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCE genera un verifier aleatorio de 32 bytes y su challenge
// S256 (base64url de sha256(verifier)).
func GeneratePKCE() (*PKCEPair, error) {
	verifier, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	return &PKCEPair{
		Verifier:  verifier,
		Challenge: tokens.SHA256Base64URL(verifier),
		Method:    PKCEMethodS256,
	}, nil
}

// GenerateState genera el valor opaco anti-CSRF que el cliente hace
// round-trip por el flujo.
func GenerateState() (string, error) {
	return tokens.GenerateOpaqueToken(24)
}

// VerifyPKCE verifica un code_verifier contra el challenge registrado al
// emitir el code. Comparación en tiempo constante en ambos métodos.
func VerifyPKCE(method, challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	switch {
	case strings.EqualFold(method, PKCEMethodS256):
		return tokens.ConstantTimeEq(challenge, tokens.SHA256Base64URL(verifier))
	case strings.EqualFold(method, PKCEMethodPlain):
		return tokens.ConstantTimeEq(challenge, verifier)
	default:
		return false
	}
}

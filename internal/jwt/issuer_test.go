package jwt

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 bytes

func TestNewIssuer_SecretTooShort(t *testing.T) {
	if _, err := NewIssuer("http://sso.local", "short", time.Minute); err != ErrSecretTooShort {
		t.Fatalf("want ErrSecretTooShort, got %v", err)
	}
}

func TestIssueAndValidateAccess(t *testing.T) {
	iss, err := NewIssuer("http://sso.local", testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	in := AccessTokenInput{
		TenantID:  "t-acme",
		UserID:    "u1",
		Email:     "ana@acme.test",
		Role:      "admin",
		SessionID: "sess-1",
		ClientID:  "vitrina-web",
	}
	signed, exp, jti, err := iss.IssueAccess(in)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if jti == "" || !exp.After(time.Now()) {
		t.Fatalf("bad jti/exp: %q %v", jti, exp)
	}

	claims, err := iss.ValidateAccess(signed)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.TenantID != "t-acme" || claims.SessionID != "sess-1" ||
		claims.ClientID != "vitrina-web" || claims.Role != "admin" || claims.Email != "ana@acme.test" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.ID != jti {
		t.Fatalf("jti mismatch: %s != %s", claims.ID, jti)
	}
}

func TestValidateAccess_Expired(t *testing.T) {
	iss, _ := NewIssuer("http://sso.local", testSecret, -time.Minute)
	iss.AccessTTL = -time.Minute // forzar emisión ya vencida
	signed, _, _, err := iss.IssueAccess(AccessTokenInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := iss.ValidateAccess(signed); err != ErrTokenExpired {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestValidateAccess_TamperedSignature(t *testing.T) {
	iss, _ := NewIssuer("http://sso.local", testSecret, time.Minute)
	signed, _, _, _ := iss.IssueAccess(AccessTokenInput{UserID: "u1"})

	other, _ := NewIssuer("http://sso.local", strings.Repeat("x", 32), time.Minute)
	if _, err := other.ValidateAccess(signed); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken on wrong secret, got %v", err)
	}

	parts := strings.Split(signed, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	if _, err := iss.ValidateAccess(tampered); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken on tampered sig, got %v", err)
	}
}

func TestValidateAccess_WrongIssuer(t *testing.T) {
	a, _ := NewIssuer("http://a.local", testSecret, time.Minute)
	b, _ := NewIssuer("http://b.local", testSecret, time.Minute)
	signed, _, _, _ := a.IssueAccess(AccessTokenInput{UserID: "u1"})
	if _, err := b.ValidateAccess(signed); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken on wrong iss, got %v", err)
	}
}

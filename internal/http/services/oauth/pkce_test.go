package oauth

import (
	"testing"

	tokens "github.com/vitrinapp/sso-core/internal/security/token"
)

func TestGeneratePKCE(t *testing.T) {
	pair, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}
	if pair.Method != PKCEMethodS256 {
		t.Fatalf("expected S256, got %q", pair.Method)
	}
	if pair.Challenge != tokens.SHA256Base64URL(pair.Verifier) {
		t.Fatal("challenge must be sha256(verifier) en base64url")
	}
	if pair.Challenge == pair.Verifier {
		t.Fatal("challenge must not equal verifier")
	}
}

func TestVerifyPKCE(t *testing.T) {
	pair, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}

	cases := []struct {
		name      string
		method    string
		challenge string
		verifier  string
		want      bool
	}{
		{"s256 valid", PKCEMethodS256, pair.Challenge, pair.Verifier, true},
		{"s256 lowercase method", "s256", pair.Challenge, pair.Verifier, true},
		{"s256 wrong verifier", PKCEMethodS256, pair.Challenge, "otro", false},
		{"plain valid", PKCEMethodPlain, "mismo-valor", "mismo-valor", true},
		{"plain mismatch", PKCEMethodPlain, "uno", "otro", false},
		{"unknown method", "md5", pair.Challenge, pair.Verifier, false},
		{"empty verifier", PKCEMethodS256, pair.Challenge, "", false},
		{"empty challenge", PKCEMethodS256, "", pair.Verifier, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifyPKCE(tc.method, tc.challenge, tc.verifier); got != tc.want {
				t.Fatalf("VerifyPKCE(%q) = %v, want %v", tc.method, got, tc.want)
			}
		})
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState: %v", err)
	}
	b, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState: %v", err)
	}
	if a == "" || a == b {
		t.Fatal("state values must be non-empty and unique")
	}
}

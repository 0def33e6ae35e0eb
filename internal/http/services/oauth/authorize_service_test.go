package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/security/password"
)

// memCodes es un AuthCodeRepository en memoria con consumo destructivo.
type memCodes struct {
	byCode map[string]repository.AuthorizationCode
}

func newMemCodes() *memCodes {
	return &memCodes{byCode: map[string]repository.AuthorizationCode{}}
}

func (m *memCodes) Create(_ context.Context, code repository.AuthorizationCode) error {
	m.byCode[code.Code] = code
	return nil
}

func (m *memCodes) Consume(_ context.Context, code string) (*repository.AuthorizationCode, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.byCode, code)
	return &c, nil
}

func (m *memCodes) DeleteExpired(context.Context) (int, error) { return 0, nil }

// memClients es un ClientRepository en memoria.
type memClients struct {
	byID map[string]repository.OAuthClient
}

func newMemClients(clients ...repository.OAuthClient) *memClients {
	m := &memClients{byID: map[string]repository.OAuthClient{}}
	for _, c := range clients {
		m.byID[c.ClientID] = c
	}
	return m
}

func (m *memClients) Get(_ context.Context, clientID string) (*repository.OAuthClient, error) {
	c, ok := m.byID[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memClients) Create(_ context.Context, in repository.CreateClientInput) (*repository.OAuthClient, error) {
	if _, ok := m.byID[in.ClientID]; ok {
		return nil, repository.ErrConflict
	}
	c := repository.OAuthClient{
		ID:           in.ClientID,
		ClientID:     in.ClientID,
		Name:         in.Name,
		Type:         in.Type,
		SecretHash:   in.SecretHash,
		RedirectURIs: in.RedirectURIs,
		IsFirstParty: in.IsFirstParty,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	m.byID[in.ClientID] = c
	return &c, nil
}

func (m *memClients) Count(context.Context) (int, error) { return len(m.byID), nil }

func (m *memClients) List(context.Context) ([]repository.OAuthClient, error) {
	var out []repository.OAuthClient
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

type staticOrigins struct {
	origins []string
}

func (s *staticOrigins) GetTenant(context.Context, string) (*repository.Tenant, error) {
	return nil, repository.ErrNotFound
}

func (s *staticOrigins) SecurityConfig(_ context.Context, tenantID string) *repository.TenantSecurityConfig {
	return repository.DefaultSecurityConfig(tenantID)
}

func (s *staticOrigins) TrustedOrigins(context.Context, string) ([]string, error) {
	return s.origins, nil
}

func webClient() repository.OAuthClient {
	return repository.OAuthClient{
		ClientID: "vitrina-web", Name: "Vitrina Web",
		Type: repository.ClientTypeWeb, IsActive: true,
	}
}

func mobileClient() repository.OAuthClient {
	return repository.OAuthClient{
		ClientID: "vitrina-mobile", Name: "Vitrina Mobile",
		Type: repository.ClientTypeMobile, IsActive: true,
		RedirectURIs: []string{"vitrina://oauth/callback"},
	}
}

func newTestAuthorize(codes *memCodes, clients *memClients, origins []string) AuthorizeService {
	reg := NewClientRegistry(clients)
	reg.seedTried.Store(true) // los tests siembran sus propios clients
	return NewAuthorizeService(AuthorizeDeps{
		Codes:        codes,
		Clients:      reg,
		ControlPlane: &staticOrigins{origins: origins},
	})
}

func authorizeReq() AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:    "vitrina-web",
		TenantID:    "t1",
		RedirectURI: "https://shop.acme.com/auth/callback",
		State:       "anti-csrf",
		UserID:      "u1",
		UserEmail:   "ana@acme.com",
		UserRole:    "customer",
	}
}

func TestAuthorizeIssuesCode(t *testing.T) {
	codes := newMemCodes()
	svc := newTestAuthorize(codes, newMemClients(webClient()), []string{"https://shop.acme.com"})

	res, err := svc.Authorize(context.Background(), authorizeReq())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if res.Code == "" {
		t.Fatal("expected a code")
	}
	if res.State != "anti-csrf" {
		t.Fatalf("state must round-trip, got %q", res.State)
	}

	stored, ok := codes.byCode[res.Code]
	if !ok {
		t.Fatal("code not persisted")
	}
	if stored.UserEmail != "ana@acme.com" || stored.RedirectURI != "https://shop.acme.com/auth/callback" {
		t.Fatalf("identity snapshot incomplete: %+v", stored)
	}
	if ttl := time.Until(stored.ExpiresAt); ttl > AuthCodeTTL || ttl < AuthCodeTTL-time.Minute {
		t.Fatalf("unexpected code ttl %v", ttl)
	}
}

func TestAuthorizeRejectsUntrustedRedirect(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), []string{"https://shop.acme.com"})

	req := authorizeReq()
	req.RedirectURI = "https://evil.example.com/callback"
	if _, err := svc.Authorize(context.Background(), req); !errors.Is(err, ErrInvalidRedirect) {
		t.Fatalf("expected ErrInvalidRedirect, got %v", err)
	}
}

func TestAuthorizeAllowsLocalhost(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), nil)

	req := authorizeReq()
	req.RedirectURI = "http://localhost:3000/auth/callback"
	if _, err := svc.Authorize(context.Background(), req); err != nil {
		t.Fatalf("localhost must be allowed for development: %v", err)
	}
}

func TestAuthorizeMobileExactMatch(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(mobileClient()), nil)

	req := authorizeReq()
	req.ClientID = "vitrina-mobile"
	req.RedirectURI = "vitrina://oauth/callback"
	if _, err := svc.Authorize(context.Background(), req); err != nil {
		t.Fatalf("registered deep link must be allowed: %v", err)
	}

	req.RedirectURI = "vitrina://oauth/other"
	if _, err := svc.Authorize(context.Background(), req); !errors.Is(err, ErrInvalidRedirect) {
		t.Fatalf("unregistered deep link must be rejected, got %v", err)
	}
}

func TestAuthorizeUnknownClient(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(), nil)

	if _, err := svc.Authorize(context.Background(), authorizeReq()); !errors.Is(err, ErrInvalidClient) {
		t.Fatalf("expected ErrInvalidClient, got %v", err)
	}
}

func TestAuthorizeInactiveClient(t *testing.T) {
	c := webClient()
	c.IsActive = false
	svc := newTestAuthorize(newMemCodes(), newMemClients(c), []string{"https://shop.acme.com"})

	if _, err := svc.Authorize(context.Background(), authorizeReq()); !errors.Is(err, ErrInvalidClient) {
		t.Fatalf("expected ErrInvalidClient, got %v", err)
	}
}

func TestAuthorizePKCEParamValidation(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), []string{"https://shop.acme.com"})

	req := authorizeReq()
	req.CodeChallenge = "challenge-without-method"
	if _, err := svc.Authorize(context.Background(), req); !errors.Is(err, ErrInvalidPKCE) {
		t.Fatalf("challenge without method must fail, got %v", err)
	}

	req.CodeChallengeMethod = "md5"
	if _, err := svc.Authorize(context.Background(), req); !errors.Is(err, ErrInvalidPKCE) {
		t.Fatalf("unknown method must fail, got %v", err)
	}
}

func issueCode(t *testing.T, svc AuthorizeService, mutate func(*AuthorizeRequest)) string {
	t.Helper()
	req := authorizeReq()
	if mutate != nil {
		mutate(&req)
	}
	res, err := svc.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	return res.Code
}

func TestExchangeReturnsIdentity(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), []string{"https://shop.acme.com"})
	code := issueCode(t, svc, nil)

	id, err := svc.Exchange(context.Background(), ExchangeRequest{
		Code:        code,
		ClientID:    "vitrina-web",
		RedirectURI: "https://shop.acme.com/auth/callback",
	})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if id.UserID != "u1" || id.TenantID != "t1" || id.UserEmail != "ana@acme.com" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestExchangeCodeSingleUse(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), []string{"https://shop.acme.com"})
	code := issueCode(t, svc, nil)

	req := ExchangeRequest{
		Code:        code,
		ClientID:    "vitrina-web",
		RedirectURI: "https://shop.acme.com/auth/callback",
	}
	if _, err := svc.Exchange(context.Background(), req); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if _, err := svc.Exchange(context.Background(), req); !errors.Is(err, ErrTokenInvalidGrant) {
		t.Fatalf("second exchange must fail with invalid_grant, got %v", err)
	}
}

func TestExchangeRedirectMismatch(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), []string{"https://shop.acme.com"})
	code := issueCode(t, svc, nil)

	_, err := svc.Exchange(context.Background(), ExchangeRequest{
		Code:        code,
		ClientID:    "vitrina-web",
		RedirectURI: "https://shop.acme.com/other",
	})
	if !errors.Is(err, ErrTokenInvalidGrant) {
		t.Fatalf("expected invalid_grant, got %v", err)
	}
}

func TestExchangePKCE(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), []string{"https://shop.acme.com"})

	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}
	code := issueCode(t, svc, func(r *AuthorizeRequest) {
		r.CodeChallenge = pkce.Challenge
		r.CodeChallengeMethod = pkce.Method
	})

	// Verifier equivocado.
	_, err = svc.Exchange(context.Background(), ExchangeRequest{
		Code: code, ClientID: "vitrina-web",
		RedirectURI:  "https://shop.acme.com/auth/callback",
		CodeVerifier: "wrong-verifier",
	})
	if !errors.Is(err, ErrTokenInvalidGrant) {
		t.Fatalf("wrong verifier must fail, got %v", err)
	}

	// El code se destruyó en el intento fallido: emitir otro.
	code = issueCode(t, svc, func(r *AuthorizeRequest) {
		r.CodeChallenge = pkce.Challenge
		r.CodeChallengeMethod = pkce.Method
	})
	if _, err := svc.Exchange(context.Background(), ExchangeRequest{
		Code: code, ClientID: "vitrina-web",
		RedirectURI:  "https://shop.acme.com/auth/callback",
		CodeVerifier: pkce.Verifier,
	}); err != nil {
		t.Fatalf("valid verifier must succeed: %v", err)
	}
}

func TestExchangePKCERequiredWhenRecorded(t *testing.T) {
	svc := newTestAuthorize(newMemCodes(), newMemClients(webClient()), []string{"https://shop.acme.com"})

	pkce, _ := GeneratePKCE()
	code := issueCode(t, svc, func(r *AuthorizeRequest) {
		r.CodeChallenge = pkce.Challenge
		r.CodeChallengeMethod = pkce.Method
	})

	_, err := svc.Exchange(context.Background(), ExchangeRequest{
		Code: code, ClientID: "vitrina-web",
		RedirectURI: "https://shop.acme.com/auth/callback",
	})
	if !errors.Is(err, ErrTokenInvalidGrant) {
		t.Fatalf("missing verifier must fail when challenge was recorded, got %v", err)
	}
}

func TestExchangeConfidentialClientSecret(t *testing.T) {
	secretHash, err := password.Hash(password.Default, "super-secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	api := repository.OAuthClient{
		ClientID: "vitrina-api", Name: "Vitrina API",
		Type: repository.ClientTypeAPI, IsActive: true,
		SecretHash: secretHash,
	}
	svc := newTestAuthorize(newMemCodes(), newMemClients(api), []string{"https://shop.acme.com"})

	code := issueCode(t, svc, func(r *AuthorizeRequest) { r.ClientID = "vitrina-api" })
	_, err = svc.Exchange(context.Background(), ExchangeRequest{
		Code: code, ClientID: "vitrina-api",
		RedirectURI:  "https://shop.acme.com/auth/callback",
		ClientSecret: "wrong",
	})
	if !errors.Is(err, ErrTokenInvalidClient) {
		t.Fatalf("wrong secret must fail with invalid_client, got %v", err)
	}

	code = issueCode(t, svc, func(r *AuthorizeRequest) { r.ClientID = "vitrina-api" })
	if _, err := svc.Exchange(context.Background(), ExchangeRequest{
		Code: code, ClientID: "vitrina-api",
		RedirectURI:  "https://shop.acme.com/auth/callback",
		ClientSecret: "super-secret",
	}); err != nil {
		t.Fatalf("valid secret must succeed: %v", err)
	}
}

func TestExchangeExpiredCode(t *testing.T) {
	codes := newMemCodes()
	svc := newTestAuthorize(codes, newMemClients(webClient()), []string{"https://shop.acme.com"})
	code := issueCode(t, svc, nil)

	stored := codes.byCode[code]
	stored.ExpiresAt = time.Now().Add(-time.Second)
	codes.byCode[code] = stored

	_, err := svc.Exchange(context.Background(), ExchangeRequest{
		Code: code, ClientID: "vitrina-web",
		RedirectURI: "https://shop.acme.com/auth/callback",
	})
	if !errors.Is(err, ErrTokenInvalidGrant) {
		t.Fatalf("expired code must fail with invalid_grant, got %v", err)
	}
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/http/services/session"
	"github.com/vitrinapp/sso-core/internal/rate"
)

type fakeVerifier struct {
	identity *Identity
	err      error
	calls    int
}

func (f *fakeVerifier) Verify(_ context.Context, _, email, _ string) (*Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.identity == nil || f.identity.Email != email {
		return nil, ErrInvalidCredentials
	}
	return f.identity, nil
}

type fakeAttempts struct {
	inserted   []repository.LoginAttempt
	failures   int
	ipFailures int
}

func (f *fakeAttempts) Insert(_ context.Context, a repository.LoginAttempt) error {
	f.inserted = append(f.inserted, a)
	return nil
}

func (f *fakeAttempts) CountFailures(context.Context, string, string, string, time.Time) (int, error) {
	return f.failures, nil
}

func (f *fakeAttempts) CountFailuresByIP(context.Context, string, time.Time) (int, error) {
	return f.ipFailures, nil
}

func (f *fakeAttempts) DeleteOlderThan(context.Context, time.Time) (int, error) { return 0, nil }

type fakeBlocked struct {
	block    *repository.BlockedIP
	inserted []repository.BlockedIP
}

func (f *fakeBlocked) Find(context.Context, string, string) (*repository.BlockedIP, error) {
	if f.block == nil {
		return nil, repository.ErrNotFound
	}
	return f.block, nil
}

func (f *fakeBlocked) Insert(_ context.Context, b repository.BlockedIP) error {
	f.inserted = append(f.inserted, b)
	return nil
}

func (f *fakeBlocked) DeleteExpired(context.Context) (int, error) { return 0, nil }

type fakePolicy struct{}

func (fakePolicy) GetTenant(context.Context, string) (*repository.Tenant, error) {
	return nil, repository.ErrNotFound
}

func (fakePolicy) SecurityConfig(_ context.Context, tenantID string) *repository.TenantSecurityConfig {
	cfg := repository.DefaultSecurityConfig(tenantID)
	cfg.EnableProgressiveDelay = false
	return cfg
}

func (fakePolicy) TrustedOrigins(context.Context, string) ([]string, error) { return nil, nil }

type fakeSessions struct {
	created []session.CreateSessionInput
	ended   map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{ended: map[string]string{}}
}

func (f *fakeSessions) CreateSession(_ context.Context, in session.CreateSessionInput) (*session.CreateSessionResult, error) {
	f.created = append(f.created, in)
	return &session.CreateSessionResult{
		Session: &repository.Session{ID: "s1", TenantID: in.TenantID, UserID: in.UserID},
	}, nil
}

func (f *fakeSessions) GetUserSessions(context.Context, string, string) ([]repository.Session, error) {
	return nil, nil
}

func (f *fakeSessions) GetTenantSessions(context.Context, string) ([]repository.Session, error) {
	return nil, nil
}

func (f *fakeSessions) UpdateSessionActivity(context.Context, string) error { return nil }

func (f *fakeSessions) ValidateSession(context.Context, string) (*repository.Session, error) {
	return nil, session.ErrSessionNotFound
}

func (f *fakeSessions) EndSession(_ context.Context, sessionID, reason string) error {
	f.ended[sessionID] = reason
	return nil
}

func (f *fakeSessions) EndAllUserSessions(_ context.Context, _, userID, reason string) (int, error) {
	f.ended[userID] = reason
	return 2, nil
}

func (f *fakeSessions) HasActiveSession(context.Context, string, string) (bool, error) {
	return false, nil
}

func newTestService(verifier *fakeVerifier, attempts *fakeAttempts, blocked *fakeBlocked, sessions *fakeSessions) Service {
	limiter := rate.NewLoginLimiter(rate.LoginDeps{
		Attempts: attempts,
		Blocked:  blocked,
		Policy:   fakePolicy{},
	})
	return New(Deps{Verifier: verifier, Limiter: limiter, Sessions: sessions})
}

func loginInput() LoginInput {
	return LoginInput{
		TenantID:  "t1",
		Email:     "Ana@acme.com",
		Password:  "secret",
		ClientID:  "vitrina-web",
		ClientApp: repository.ClientAppWeb,
		IPAddress: "203.0.113.9",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Safari/604.1",
	}
}

func TestLoginSuccess(t *testing.T) {
	verifier := &fakeVerifier{identity: &Identity{UserID: "u1", Email: "ana@acme.com", Role: "customer"}}
	attempts := &fakeAttempts{}
	sessions := newFakeSessions()
	svc := newTestService(verifier, attempts, &fakeBlocked{}, sessions)

	res, err := svc.Login(context.Background(), loginInput())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Session.ID != "s1" {
		t.Fatalf("unexpected session %+v", res.Session)
	}

	if len(attempts.inserted) != 1 {
		t.Fatalf("expected 1 audited attempt, got %d", len(attempts.inserted))
	}
	a := attempts.inserted[0]
	if !a.Success {
		t.Fatal("successful login must be audited as success")
	}
	if a.Email != "ana@acme.com" {
		t.Fatalf("email must be normalized, got %q", a.Email)
	}
	if a.DeviceType != "mobile" {
		t.Fatalf("expected parsed device type mobile, got %q", a.DeviceType)
	}

	if len(sessions.created) != 1 || sessions.created[0].UserID != "u1" {
		t.Fatal("session must be created for the verified identity")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	attempts := &fakeAttempts{}
	sessions := newFakeSessions()
	svc := newTestService(&fakeVerifier{}, attempts, &fakeBlocked{}, sessions)

	_, err := svc.Login(context.Background(), loginInput())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(attempts.inserted) != 1 || attempts.inserted[0].Success {
		t.Fatal("failed login must be audited as failure")
	}
	if attempts.inserted[0].FailureReason != FailureInvalidCredentials {
		t.Fatalf("unexpected failure reason %q", attempts.inserted[0].FailureReason)
	}
	if len(sessions.created) != 0 {
		t.Fatal("no session on failed login")
	}
}

func TestLoginDirectoryUnavailable(t *testing.T) {
	upstream := errors.New("directory: unexpected status 503")
	verifier := &fakeVerifier{err: upstream}
	attempts := &fakeAttempts{}
	sessions := newFakeSessions()
	svc := newTestService(verifier, attempts, &fakeBlocked{}, sessions)

	_, err := svc.Login(context.Background(), loginInput())
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("directory outage must not look like bad credentials, got %v", err)
	}
	if !errors.Is(err, upstream) {
		t.Fatalf("upstream error must propagate, got %v", err)
	}
	if len(attempts.inserted) != 0 {
		t.Fatal("an outage is not a failed attempt: history must stay clean")
	}
	if len(sessions.created) != 0 {
		t.Fatal("no session on verifier failure")
	}
}

func TestLoginLockedAccount(t *testing.T) {
	verifier := &fakeVerifier{identity: &Identity{UserID: "u1", Email: "ana@acme.com"}}
	attempts := &fakeAttempts{failures: 5}
	svc := newTestService(verifier, attempts, &fakeBlocked{}, newFakeSessions())

	_, err := svc.Login(context.Background(), loginInput())
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rl.Reason != rate.ReasonAccountLocked {
		t.Fatalf("expected account_locked, got %q", rl.Reason)
	}
	if rl.Until == nil || !rl.Until.After(time.Now()) {
		t.Fatal("lockout must carry a future expiry")
	}
	if verifier.calls != 0 {
		t.Fatal("credentials must not be verified while locked out")
	}
}

func TestLoginBlockedIP(t *testing.T) {
	blocked := &fakeBlocked{block: &repository.BlockedIP{
		IPAddress: "203.0.113.9",
		Scope:     repository.BlockScopeGlobal,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	verifier := &fakeVerifier{identity: &Identity{UserID: "u1", Email: "ana@acme.com"}}
	svc := newTestService(verifier, &fakeAttempts{}, blocked, newFakeSessions())

	_, err := svc.Login(context.Background(), loginInput())
	var rl *RateLimitedError
	if !errors.As(err, &rl) || rl.Reason != rate.ReasonIPBlocked {
		t.Fatalf("expected ip_blocked rejection, got %v", err)
	}
	if verifier.calls != 0 {
		t.Fatal("credentials must not be verified for blocked ips")
	}
}

func TestLoginGlobalIPRateExceeded(t *testing.T) {
	attempts := &fakeAttempts{ipFailures: 150}
	blocked := &fakeBlocked{}
	verifier := &fakeVerifier{identity: &Identity{UserID: "u1", Email: "ana@acme.com"}}
	svc := newTestService(verifier, attempts, blocked, newFakeSessions())

	_, err := svc.Login(context.Background(), loginInput())
	var rl *RateLimitedError
	if !errors.As(err, &rl) || rl.Reason != rate.ReasonIPBlocked {
		t.Fatalf("expected ip_blocked rejection, got %v", err)
	}
	if len(blocked.inserted) != 1 {
		t.Fatal("global block must be inserted")
	}
}

func TestLoginRejectsIncompleteInput(t *testing.T) {
	svc := newTestService(&fakeVerifier{}, &fakeAttempts{}, &fakeBlocked{}, newFakeSessions())

	in := loginInput()
	in.Password = ""
	if _, err := svc.Login(context.Background(), in); !errors.Is(err, repository.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	sessions := newFakeSessions()
	svc := newTestService(&fakeVerifier{}, &fakeAttempts{}, &fakeBlocked{}, sessions)

	if err := svc.Logout(context.Background(), "s1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if sessions.ended["s1"] != session.ReasonLogout {
		t.Fatalf("unexpected end reason %q", sessions.ended["s1"])
	}
}

func TestLogoutAll(t *testing.T) {
	sessions := newFakeSessions()
	svc := newTestService(&fakeVerifier{}, &fakeAttempts{}, &fakeBlocked{}, sessions)

	n, err := svc.LogoutAll(context.Background(), "t1", "u1")
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if n != 2 || sessions.ended["u1"] != session.ReasonLogoutAll {
		t.Fatal("all user sessions must be ended")
	}
}

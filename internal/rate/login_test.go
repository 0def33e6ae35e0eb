package rate

import (
	"context"
	"testing"
	"time"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
)

type fakeAttempts struct {
	inserted   []repository.LoginAttempt
	failures   int
	ipFailures int
}

func (f *fakeAttempts) Insert(_ context.Context, a repository.LoginAttempt) error {
	f.inserted = append(f.inserted, a)
	return nil
}

func (f *fakeAttempts) CountFailures(_ context.Context, _, _, _ string, _ time.Time) (int, error) {
	return f.failures, nil
}

func (f *fakeAttempts) CountFailuresByIP(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.ipFailures, nil
}

func (f *fakeAttempts) DeleteOlderThan(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

type fakeBlocked struct {
	block    *repository.BlockedIP
	inserted []repository.BlockedIP
}

func (f *fakeBlocked) Find(_ context.Context, _, _ string) (*repository.BlockedIP, error) {
	if f.block == nil {
		return nil, repository.ErrNotFound
	}
	return f.block, nil
}

func (f *fakeBlocked) Insert(_ context.Context, b repository.BlockedIP) error {
	f.inserted = append(f.inserted, b)
	return nil
}

func (f *fakeBlocked) DeleteExpired(_ context.Context) (int, error) { return 0, nil }

type fakePolicy struct {
	cfg *repository.TenantSecurityConfig
}

func (f *fakePolicy) GetTenant(_ context.Context, _ string) (*repository.Tenant, error) {
	return nil, repository.ErrNotFound
}

func (f *fakePolicy) SecurityConfig(_ context.Context, _ string) *repository.TenantSecurityConfig {
	if f.cfg != nil {
		return f.cfg
	}
	return repository.DefaultSecurityConfig("acme")
}

func (f *fakePolicy) TrustedOrigins(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func newTestLimiter(att *fakeAttempts, blk *fakeBlocked, pol *fakePolicy) *LoginLimiter {
	return NewLoginLimiter(LoginDeps{
		Attempts: att,
		Blocked:  blk,
		Policy:   pol,
	})
}

func TestProgressiveDelayFor(t *testing.T) {
	cases := []struct {
		failed int
		want   time.Duration
	}{
		{0, 0},
		{1, 0},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{6, 16 * time.Second},
		{7, 30 * time.Second},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, c := range cases {
		if got := ProgressiveDelayFor(c.failed); got != c.want {
			t.Errorf("ProgressiveDelayFor(%d) = %v, want %v", c.failed, got, c.want)
		}
	}
}

func TestCheckLoginRateAllowed(t *testing.T) {
	att := &fakeAttempts{failures: 0}
	l := newTestLimiter(att, &fakeBlocked{}, &fakePolicy{})

	res, err := l.CheckLoginRate(context.Background(), "user@acme.com", "10.0.0.1", "acme")
	if err != nil {
		t.Fatalf("CheckLoginRate: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected allowed")
	}
	if res.Delay != 0 {
		t.Errorf("expected no delay, got %v", res.Delay)
	}
	if res.AttemptsRemaining != 5 {
		t.Errorf("attempts remaining = %d, want 5", res.AttemptsRemaining)
	}
}

func TestCheckLoginRateProgressiveDelay(t *testing.T) {
	att := &fakeAttempts{failures: 3}
	l := newTestLimiter(att, &fakeBlocked{}, &fakePolicy{})

	res, err := l.CheckLoginRate(context.Background(), "user@acme.com", "10.0.0.1", "acme")
	if err != nil {
		t.Fatalf("CheckLoginRate: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected allowed below the lockout threshold")
	}
	if res.Delay != 2*time.Second {
		t.Errorf("delay = %v, want 2s", res.Delay)
	}
	if res.AttemptsRemaining != 2 {
		t.Errorf("attempts remaining = %d, want 2", res.AttemptsRemaining)
	}
}

func TestCheckLoginRateDelayDisabled(t *testing.T) {
	cfg := repository.DefaultSecurityConfig("acme")
	cfg.EnableProgressiveDelay = false
	att := &fakeAttempts{failures: 3}
	l := newTestLimiter(att, &fakeBlocked{}, &fakePolicy{cfg: cfg})

	res, err := l.CheckLoginRate(context.Background(), "user@acme.com", "10.0.0.1", "acme")
	if err != nil {
		t.Fatalf("CheckLoginRate: %v", err)
	}
	if res.Delay != 0 {
		t.Errorf("delay = %v, want 0 when disabled", res.Delay)
	}
}

func TestCheckLoginRateLockout(t *testing.T) {
	att := &fakeAttempts{failures: 5}
	l := newTestLimiter(att, &fakeBlocked{}, &fakePolicy{})

	res, err := l.CheckLoginRate(context.Background(), "user@acme.com", "10.0.0.1", "acme")
	if err != nil {
		t.Fatalf("CheckLoginRate: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected lockout")
	}
	if res.Reason != ReasonAccountLocked {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonAccountLocked)
	}
	if res.AttemptsRemaining != 0 {
		t.Errorf("attempts remaining = %d, want 0", res.AttemptsRemaining)
	}
	if res.LockoutUntil == nil || !res.LockoutUntil.After(time.Now()) {
		t.Error("expected a future lockout_until")
	}
}

func TestCheckLoginRateBlockedIP(t *testing.T) {
	until := time.Now().Add(time.Hour)
	blk := &fakeBlocked{block: &repository.BlockedIP{
		IPAddress: "10.0.0.1",
		Scope:     repository.BlockScopeGlobal,
		ExpiresAt: until,
	}}
	l := newTestLimiter(&fakeAttempts{}, blk, &fakePolicy{})

	res, err := l.CheckLoginRate(context.Background(), "user@acme.com", "10.0.0.1", "acme")
	if err != nil {
		t.Fatalf("CheckLoginRate: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected blocked ip to be rejected")
	}
	if res.Reason != ReasonIPBlocked {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonIPBlocked)
	}
	if res.LockoutUntil == nil || !res.LockoutUntil.Equal(until) {
		t.Error("expected lockout_until to carry the block expiry")
	}
}

func TestCheckGlobalIPRate(t *testing.T) {
	att := &fakeAttempts{ipFailures: 99}
	blk := &fakeBlocked{}
	l := newTestLimiter(att, blk, &fakePolicy{})

	ok, err := l.CheckGlobalIPRate(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckGlobalIPRate: %v", err)
	}
	if !ok {
		t.Fatal("expected allowed below the global cap")
	}
	if len(blk.inserted) != 0 {
		t.Fatal("no block should be inserted below the cap")
	}

	att.ipFailures = 100
	ok, err = l.CheckGlobalIPRate(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckGlobalIPRate: %v", err)
	}
	if ok {
		t.Fatal("expected rejection at the global cap")
	}
	if len(blk.inserted) != 1 {
		t.Fatalf("expected one inserted block, got %d", len(blk.inserted))
	}
	b := blk.inserted[0]
	if b.Scope != repository.BlockScopeGlobal {
		t.Errorf("scope = %q, want global", b.Scope)
	}
	if got := b.ExpiresAt.Sub(b.CreatedAt); got != 24*time.Hour {
		t.Errorf("block ttl = %v, want 24h", got)
	}
}

func TestLogAttemptRecords(t *testing.T) {
	att := &fakeAttempts{}
	l := newTestLimiter(att, &fakeBlocked{}, &fakePolicy{})

	err := l.LogAttempt(context.Background(), repository.LoginAttempt{
		TenantID:      "acme",
		Email:         "user@acme.com",
		IPAddress:     "10.0.0.1",
		Success:       false,
		FailureReason: "invalid_credentials",
	})
	if err != nil {
		t.Fatalf("LogAttempt: %v", err)
	}
	if len(att.inserted) != 1 {
		t.Fatalf("expected one inserted attempt, got %d", len(att.inserted))
	}
	if att.inserted[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped")
	}
}

func TestApplyProgressiveDelayCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	ApplyProgressiveDelay(ctx, 5*time.Second)
	if time.Since(start) > time.Second {
		t.Error("cancelled context should return immediately")
	}
}

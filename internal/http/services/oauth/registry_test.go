package oauth

import (
	"context"
	"testing"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	"github.com/vitrinapp/sso-core/internal/security/password"
)

func TestSeedInstallsFirstPartyClients(t *testing.T) {
	repo := newMemClients()
	reg := NewClientRegistry(repo)

	seeded, err := reg.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(seeded) != 3 {
		t.Fatalf("expected 3 seeded clients, got %d", len(seeded))
	}

	web, err := repo.Get(context.Background(), "vitrina-web")
	if err != nil {
		t.Fatalf("web client missing: %v", err)
	}
	if web.SecretHash != "" {
		t.Fatal("web client must be public")
	}
	if !web.IsFirstParty {
		t.Fatal("seeded clients must be first-party")
	}

	mobile, err := repo.Get(context.Background(), "vitrina-mobile")
	if err != nil {
		t.Fatalf("mobile client missing: %v", err)
	}
	if len(mobile.RedirectURIs) == 0 {
		t.Fatal("mobile client must carry its deep-link allow-list")
	}

	api, err := repo.Get(context.Background(), "vitrina-api")
	if err != nil {
		t.Fatalf("api client missing: %v", err)
	}
	if api.SecretHash == "" {
		t.Fatal("api client must be confidential")
	}
	for _, c := range seeded {
		if c.ClientID != "vitrina-api" {
			continue
		}
		if c.Secret == "" {
			t.Fatal("seed must return the raw secret once")
		}
		if !password.Verify(c.Secret, api.SecretHash) {
			t.Fatal("stored hash must verify against the returned secret")
		}
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := newMemClients()
	reg := NewClientRegistry(repo)

	if _, err := reg.Seed(context.Background()); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	again, err := reg.Seed(context.Background())
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("non-empty registry must be a no-op, got %d", len(again))
	}
}

func TestSeedSkipsExistingRegistry(t *testing.T) {
	repo := newMemClients(repository.OAuthClient{ClientID: "custom", IsActive: true})
	reg := NewClientRegistry(repo)

	seeded, err := reg.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(seeded) != 0 {
		t.Fatal("registry with existing clients must not be seeded")
	}
}

func TestRegistryGetSeedsOnFirstLookup(t *testing.T) {
	reg := NewClientRegistry(newMemClients())

	c, err := reg.Get(context.Background(), "vitrina-web")
	if err != nil {
		t.Fatalf("Get after auto-seed: %v", err)
	}
	if c.Type != repository.ClientTypeWeb {
		t.Fatalf("unexpected client %+v", c)
	}
}

func TestRegistryGetRejectsBlankID(t *testing.T) {
	reg := NewClientRegistry(newMemClients())
	if _, err := reg.Get(context.Background(), "   "); err == nil {
		t.Fatal("blank client_id must be rejected")
	}
}

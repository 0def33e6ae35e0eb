package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vitrinapp/sso-core/internal/http/services/auth"
)

func TestVerifyOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("X-API-Key"); got != "k-123" {
			t.Errorf("api key = %q", got)
		}
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.TenantID != "t-1" || req.Email != "ana@example.com" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(verifyResponse{
			UserID: "u-1", Email: req.Email, Role: "admin", Name: "Ana",
		})
	}))
	defer srv.Close()

	v := New(srv.URL, "k-123", 2*time.Second)
	id, err := v.Verify(context.Background(), "t-1", "ana@example.com", "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "u-1" || id.Role != "admin" {
		t.Errorf("identity = %+v", id)
	}
}

func TestVerifyInvalidCredentials(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		v := New(srv.URL, "", time.Second)
		_, err := v.Verify(context.Background(), "t-1", "ana@example.com", "wrong")
		srv.Close()
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Errorf("status %d: err = %v, want ErrInvalidCredentials", status, err)
		}
	}
}

func TestVerifyUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := New(srv.URL, "", time.Second)
	_, err := v.Verify(context.Background(), "t-1", "ana@example.com", "secret")
	if err == nil || errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("err = %v, want upstream error", err)
	}
}

func TestVerifyMissingUserID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email":"ana@example.com"}`))
	}))
	defer srv.Close()

	v := New(srv.URL, "", time.Second)
	if _, err := v.Verify(context.Background(), "t-1", "ana@example.com", "secret"); err == nil {
		t.Error("expected error for response without user_id")
	}
}

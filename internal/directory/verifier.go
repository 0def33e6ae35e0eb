// Package directory implementa el CredentialVerifier contra el servicio
// de directorio de usuarios. El SSO core no almacena passwords; delega
// la verificación en un endpoint HTTP upstream.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vitrinapp/sso-core/internal/http/services/auth"
)

type Verifier struct {
	url    string
	apiKey string
	http   *http.Client
}

func New(url, apiKey string, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

// Verify consulta el directorio. 200 => identidad; 401/404 => credenciales
// inválidas (misma respuesta para usuario inexistente y password incorrecto).
func (v *Verifier) Verify(ctx context.Context, tenantID, email, password string) (*auth.Identity, error) {
	body, err := json.Marshal(verifyRequest{TenantID: tenantID, Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: verify request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, auth.ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("directory: unexpected status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&vr); err != nil {
		return nil, fmt.Errorf("directory: decode response: %w", err)
	}
	if vr.UserID == "" {
		return nil, fmt.Errorf("directory: response missing user_id")
	}
	return &auth.Identity{
		UserID: vr.UserID,
		Email:  vr.Email,
		Role:   vr.Role,
		Name:   vr.Name,
	}, nil
}

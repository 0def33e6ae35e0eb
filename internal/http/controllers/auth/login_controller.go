// Package auth contiene los controllers de login/logout.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vitrinapp/sso-core/internal/domain/repository"
	httpx "github.com/vitrinapp/sso-core/internal/http"
	svc "github.com/vitrinapp/sso-core/internal/http/services/auth"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	"github.com/vitrinapp/sso-core/internal/rate"
)

type loginRequest struct {
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	ClientID  string `json:"client_id"`
	ClientApp string `json:"client_app"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

// LoginController maneja POST /v1/auth/login.
type LoginController struct {
	service svc.Service
}

// NewLoginController crea el controller.
func NewLoginController(s svc.Service) *LoginController {
	return &LoginController{service: s}
}

// Login maneja el intento de login.
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.login"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "only POST is allowed")
		return
	}

	var req loginRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}

	res, err := c.service.Login(ctx, svc.LoginInput{
		TenantID:       strings.TrimSpace(req.TenantID),
		Email:          req.Email,
		Password:       req.Password,
		ClientID:       strings.TrimSpace(req.ClientID),
		ClientApp:      strings.TrimSpace(req.ClientApp),
		IPAddress:      httpx.ClientIP(r),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})
	if err != nil {
		c.writeLoginError(w, ctx, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.Tokens.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    res.Tokens.ExpiresIn(),
		RefreshToken: res.Tokens.RefreshToken,
		SessionID:    res.Session.ID,
	})
	log.Debug("login completed")
}

func (c *LoginController) writeLoginError(w http.ResponseWriter, ctx context.Context, err error) {
	var rl *svc.RateLimitedError
	switch {
	case errors.As(err, &rl):
		if rl.Until != nil {
			retry := time.Until(*rl.Until)
			if retry > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			}
		}
		code := "rate_limited"
		if rl.Reason == rate.ReasonAccountLocked {
			code = "account_locked"
		}
		httpx.WriteError(w, http.StatusTooManyRequests, code, "too many failed attempts")
	case errors.Is(err, svc.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
	case errors.Is(err, repository.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "missing required fields")
	default:
		logger.From(ctx).Error("login endpoint error", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "an unexpected error occurred")
	}
}

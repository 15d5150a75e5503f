// Package auth contiene los controllers de sesión de operadores de plataforma.
package auth

import (
	"net/http"
	"strings"
	"time"

	authsvc "github.com/dropDatabas3/cpauth/internal/auth"
	dto "github.com/dropDatabas3/cpauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	"github.com/dropDatabas3/cpauth/internal/http/middlewares"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// Controller maneja /v1/auth/*.
type Controller struct {
	svc     *authsvc.Service
	cookies *helpers.Cookies
	now     func() time.Time
}

func NewController(svc *authsvc.Service, cookies *helpers.Cookies) *Controller {
	return &Controller{svc: svc, cookies: cookies, now: time.Now}
}

// WriteTokens deja las cookies de sesión y responde el access token. Lo comparte el
// login externo, que termina en la misma emisión.
func WriteTokens(w http.ResponseWriter, r *http.Request, cookies *helpers.Cookies, t *authsvc.Tokens, now time.Time) {
	csrf, err := cookies.SetSession(w, t)
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(t.AccessExpiresAt.Sub(now).Seconds()),
		ExpiresAt:   t.AccessExpiresAt,
		PrincipalID: t.PrincipalID,
		CSRFToken:   csrf,
	})
}

// Login handles POST /v1/auth/login
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("email y password son requeridos"))
		return
	}

	t, err := c.svc.Login(r.Context(), authsvc.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		MFACode:      strings.TrimSpace(req.MFACode),
		CaptchaToken: req.CaptchaToken,
		IP:           middlewares.GetClientIP(r.Context()),
	})
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	WriteTokens(w, r, c.cookies, t, c.now())
}

// Refresh handles POST /v1/auth/refresh (cookie + CSRF).
func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	rt := c.cookies.RefreshToken(r)
	if rt == "" {
		httperrors.WriteError(w, httperrors.ErrSessionRevoked)
		return
	}
	t, err := c.svc.Refresh(r.Context(), rt, middlewares.GetClientIP(r.Context()))
	if err != nil {
		appErr := httperrors.FromError(err)
		if appErr.HTTPStatus == http.StatusUnauthorized || appErr.HTTPStatus == http.StatusForbidden {
			c.cookies.ClearSession(w)
		}
		httperrors.Respond(w, r, err)
		return
	}
	WriteTokens(w, r, c.cookies, t, c.now())
}

// Logout handles POST /v1/auth/logout. Siempre limpia las cookies.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	rt := c.cookies.RefreshToken(r)
	c.cookies.ClearSession(w)
	if err := c.svc.Logout(r.Context(), rt); err != nil {
		logger.From(r.Context()).Error("logout revoke failed", logger.Err(err))
		httperrors.Respond(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /v1/auth/password (bearer). Revoca todas las sesiones.
func (c *Controller) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("current_password y new_password son requeridos"))
		return
	}
	err := c.svc.ChangePassword(r.Context(), authsvc.ChangePasswordInput{
		PrincipalID: middlewares.GetPrincipalID(r.Context()),
		Current:     req.CurrentPassword,
		New:         req.NewPassword,
		IP:          middlewares.GetClientIP(r.Context()),
	})
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	c.cookies.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /v1/auth/me
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	claims := middlewares.GetClaims(r.Context())
	if claims == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	resp := dto.MeResponse{
		PrincipalID: claims.Subject,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

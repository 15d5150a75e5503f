// Package oauth contiene los controllers del login con proveedores OIDC.
package oauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/auth"
	dto "github.com/dropDatabas3/cpauth/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	"github.com/dropDatabas3/cpauth/internal/http/middlewares"
	"github.com/dropDatabas3/cpauth/internal/oauth"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// Redirects a la UI tras el callback. Vacíos = respuesta JSON.
type Redirects struct {
	Success string // sesión emitida; la UI obtiene el access token vía /v1/auth/refresh
	MFA     string // challenge pendiente; la UI pide el código y llama /v1/oauth/complete
}

type Controller struct {
	svc       *oauth.Service
	cookies   *helpers.Cookies
	redirects Redirects
	now       func() time.Time
}

func NewController(svc *oauth.Service, cookies *helpers.Cookies, redirects Redirects) *Controller {
	return &Controller{svc: svc, cookies: cookies, redirects: redirects, now: time.Now}
}

// Providers handles GET /v1/oauth/providers
func (c *Controller) Providers(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.ProvidersResponse{Providers: c.svc.Providers()})
}

func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("mode") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json")
}

// Start handles GET /v1/oauth/{provider}/start
func (c *Controller) Start(w http.ResponseWriter, r *http.Request) {
	flow, err := c.svc.Start(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	c.cookies.SetFlow(w, flow)
	if wantsJSON(r) {
		helpers.WriteJSON(w, http.StatusOK, dto.StartResponse{AuthURL: flow.AuthURL, ExpiresAt: flow.ExpiresAt})
		return
	}
	http.Redirect(w, r, flow.AuthURL, http.StatusFound)
}

// Callback handles GET /v1/oauth/{provider}/callback. Las cookies transitorias se
// leen y se borran antes de cualquier validación: no sobreviven a un callback fallido.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	flowCookies := c.cookies.ReadFlow(r)
	c.cookies.ClearFlow(w)

	q := r.URL.Query()
	res, err := c.svc.Callback(r.Context(), oauth.CallbackInput{
		Provider: chi.URLParam(r, "provider"),
		State:    q.Get("state"),
		Code:     q.Get("code"),
		Error:    q.Get("error"),
		Cookies:  flowCookies,
		IP:       middlewares.GetClientIP(r.Context()),
	})
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}

	if res.Pending != nil {
		c.cookies.SetPending(w, res.Pending)
		if c.redirects.MFA != "" {
			http.Redirect(w, r, c.redirects.MFA, http.StatusSeeOther)
			return
		}
		helpers.WriteJSON(w, http.StatusOK, dto.PendingResponse{Status: "mfa_required", ExpiresAt: res.Pending.ExpiresAt})
		return
	}

	if c.redirects.Success != "" {
		if _, err := c.cookies.SetSession(w, res.Tokens); err != nil {
			httperrors.Respond(w, r, err)
			return
		}
		http.Redirect(w, r, c.redirects.Success, http.StatusSeeOther)
		return
	}
	authctrl.WriteTokens(w, r, c.cookies, res.Tokens, c.now())
}

// Complete handles POST /v1/oauth/complete
func (c *Controller) Complete(w http.ResponseWriter, r *http.Request) {
	var req dto.CompleteRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	id, csrfCookie := c.cookies.ReadPending(r)
	if id == "" {
		httperrors.WriteError(w, httperrors.ErrMFAChallengeExpired)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("code es requerido"))
		return
	}

	t, err := c.svc.Complete(r.Context(), oauth.CompleteInput{
		ChallengeID: id,
		CSRFCookie:  csrfCookie,
		CSRFHeader:  r.Header.Get(helpers.HeaderCSRF),
		Code:        strings.TrimSpace(req.Code),
		IP:          middlewares.GetClientIP(r.Context()),
	})
	if err != nil {
		if errors.Is(err, oauth.ErrChallengeNotFound) {
			c.cookies.ClearPending(w)
		}
		logger.From(r.Context()).Debug("oauth complete rejected", logger.Err(err))
		httperrors.Respond(w, r, err)
		return
	}
	c.cookies.ClearPending(w)
	authctrl.WriteTokens(w, r, c.cookies, t, c.now())
}

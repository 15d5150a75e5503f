// Package mfa contiene los controllers de TOTP y recovery codes.
package mfa

import (
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/cpauth/internal/http/dto/mfa"
	httperrors "github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	"github.com/dropDatabas3/cpauth/internal/http/middlewares"
	mfasvc "github.com/dropDatabas3/cpauth/internal/mfa"
)

// Controller maneja /v1/mfa/*. Todas las rutas exigen access token.
type Controller struct {
	svc *mfasvc.Service
}

func NewController(svc *mfasvc.Service) *Controller {
	return &Controller{svc: svc}
}

func readCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req dto.CodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return "", false
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("code es requerido"))
		return "", false
	}
	return code, true
}

// Setup handles POST /v1/mfa/totp/setup
func (c *Controller) Setup(w http.ResponseWriter, r *http.Request) {
	key, err := c.svc.Setup(r.Context(), middlewares.GetPrincipalID(r.Context()))
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SetupResponse{Secret: key.Secret, OTPAuthURL: key.URL})
}

// Enable handles POST /v1/mfa/totp/enable. Devuelve los recovery codes una sola vez.
func (c *Controller) Enable(w http.ResponseWriter, r *http.Request) {
	code, ok := readCode(w, r)
	if !ok {
		return
	}
	codes, err := c.svc.Enable(r.Context(), middlewares.GetPrincipalID(r.Context()), code)
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.RecoveryCodesResponse{RecoveryCodes: codes})
}

// Disable handles POST /v1/mfa/totp/disable
func (c *Controller) Disable(w http.ResponseWriter, r *http.Request) {
	code, ok := readCode(w, r)
	if !ok {
		return
	}
	if err := c.svc.Disable(r.Context(), middlewares.GetPrincipalID(r.Context()), code); err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: "disabled"})
}

// Reauth handles POST /v1/mfa/reauth: marca la sesión como verificada recientemente.
func (c *Controller) Reauth(w http.ResponseWriter, r *http.Request) {
	code, ok := readCode(w, r)
	if !ok {
		return
	}
	if err := c.svc.Reauth(r.Context(), middlewares.GetPrincipalID(r.Context()), code); err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: "fresh"})
}

// RegenerateRecoveryCodes handles POST /v1/mfa/recovery-codes
func (c *Controller) RegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	code, ok := readCode(w, r)
	if !ok {
		return
	}
	codes, err := c.svc.RegenerateRecoveryCodes(r.Context(), middlewares.GetPrincipalID(r.Context()), code)
	if err != nil {
		httperrors.Respond(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.RecoveryCodesResponse{RecoveryCodes: codes})
}

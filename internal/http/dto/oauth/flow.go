// Package oauth contiene los DTOs del login con proveedores OIDC.
package oauth

import "time"

// StartResponse se usa cuando el cliente pide la URL en JSON en lugar del redirect.
type StartResponse struct {
	AuthURL   string    `json:"auth_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PendingResponse indica que el login externo necesita el segundo factor local.
type PendingResponse struct {
	Status    string    `json:"status"` // "mfa_required"
	ExpiresAt time.Time `json:"expires_at"`
}

// CompleteRequest lleva el código para completar un challenge pendiente.
type CompleteRequest struct {
	Code string `json:"code"`
}

// ProvidersResponse lista los proveedores configurados.
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// Package auth contiene los DTOs de login, refresh, logout y cambio de password.
package auth

import "time"

// LoginRequest representa el login por password. El segundo factor viaja en el mismo request.
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	MFACode      string `json:"mfa_code,omitempty"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

// TokenResponse se devuelve tras login, refresh o login externo. El refresh token nunca
// viaja en el body: queda en una cookie httpOnly.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	PrincipalID string    `json:"principal_id"`
	CSRFToken   string    `json:"csrf_token"`
}

// ChangePasswordRequest representa POST /v1/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MeResponse resume la identidad del access token.
type MeResponse struct {
	PrincipalID string    `json:"principal_id"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

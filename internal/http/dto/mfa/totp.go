// Package mfa contiene los DTOs de los endpoints de segundo factor.
package mfa

// CodeRequest lleva un código TOTP o un recovery code.
type CodeRequest struct {
	Code string `json:"code"`
}

// SetupResponse contiene el secreto: la respuesta es no-store.
type SetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// RecoveryCodesResponse se muestra una única vez.
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// StatusResponse es la respuesta de operaciones sin payload propio.
type StatusResponse struct {
	Status string `json:"status"`
}

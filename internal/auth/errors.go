package auth

import (
	"errors"
	"fmt"
	"time"
)

// Errores de autenticación. La capa HTTP los traduce a la taxonomía pública.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrMFARequired        = errors.New("mfa required")
	ErrInvalidMFACode     = errors.New("invalid mfa code")
	ErrIPDenied           = errors.New("ip not allowed")
	ErrCaptchaRequired    = errors.New("captcha required")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrReauthRequired     = errors.New("recent mfa verification required")
	ErrWeakPassword       = errors.New("password policy violation")

	ErrRateLimited = errors.New("rate limited")
	ErrSoftLocked  = errors.New("soft locked")
)

// ThrottledError lleva el Retry-After del throttle.
type ThrottledError struct {
	Locked     bool
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%v: retry after %s", e.Unwrap(), e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error {
	if e.Locked {
		return ErrSoftLocked
	}
	return ErrRateLimited
}

// PolicyError detalla qué reglas de password fallaron.
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string { return fmt.Sprintf("%v: %v", ErrWeakPassword, e.Reasons) }
func (e *PolicyError) Unwrap() error { return ErrWeakPassword }

package oauth

import (
	"errors"
	"fmt"

	"github.com/dropDatabas3/cpauth/internal/auth"
)

var (
	ErrUnknownProvider = errors.New("oauth: unknown provider")
	ErrProviderConfig  = errors.New("oauth: invalid provider config")

	ErrInvalidState   = errors.New("oauth: invalid state")
	ErrInvalidNonce   = errors.New("oauth: invalid nonce")
	ErrInvalidIDToken = errors.New("oauth: invalid id_token")
	ErrExchange       = errors.New("oauth: code exchange failed")
	ErrProviderDenied = errors.New("oauth: provider returned error")

	ErrCSRFMismatch      = errors.New("oauth: csrf mismatch")
	ErrChallengeNotFound = errors.New("oauth: mfa challenge not found or expired")
	ErrChallengeInUse    = errors.New("oauth: mfa challenge is being verified")

	// ErrProvisioningDenied se presenta al cliente como credenciales inválidas.
	ErrProvisioningDenied = fmt.Errorf("%w: sso provisioning denied", auth.ErrInvalidCredentials)
)

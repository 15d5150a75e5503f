package errors

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/cpauth/internal/auth"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/jwt"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/oauth"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/security/secretbox"
	"github.com/dropDatabas3/cpauth/internal/session"
	"github.com/dropDatabas3/cpauth/internal/webhook"
)

// Retry-After de los NACK de webhooks y de las caídas del store.
const (
	nackRetryAfter        = 60 * time.Second
	inFlightRetryAfter    = 5 * time.Second
	unavailableRetryAfter = 5 * time.Second
)

type mapping struct {
	target error
	app    *AppError
}

// El orden importa: los sentinels más específicos van antes que los que envuelven.
var domainTable = []mapping{
	// auth
	{auth.ErrInvalidCredentials, ErrInvalidCredentials},
	{auth.ErrAccountDisabled, ErrAccountDisabled},
	{auth.ErrMFARequired, ErrMFARequired},
	{auth.ErrInvalidMFACode, ErrInvalidMFACode},
	{auth.ErrIPDenied, ErrIPDenied},
	{auth.ErrCaptchaRequired, ErrCaptchaRequired},
	{auth.ErrSessionRevoked, ErrSessionRevoked},
	{auth.ErrReauthRequired, ErrReauthRequired},

	// sesiones y tokens
	{session.ErrRevoked, ErrSessionRevoked},
	{jwt.ErrExpired, ErrTokenExpired},
	{jwt.ErrInvalidSignature, ErrTokenInvalid},
	{jwt.ErrWrongAudience, ErrTokenInvalid},
	{jwt.ErrInvalidClaims, ErrTokenInvalid},

	// mfa
	{mfa.ErrInvalidCode, ErrInvalidMFACode},
	{mfa.ErrReauthRequired, ErrReauthRequired},
	{mfa.ErrAlreadyEnabled, ErrMFAAlreadyEnabled},
	{mfa.ErrNotEnabled, ErrMFANotEnabled},
	{mfa.ErrNotSetup, ErrMFASetupRequired},

	// oauth
	{oauth.ErrUnknownProvider, ErrUnknownProvider},
	{oauth.ErrInvalidState, ErrInvalidState},
	{oauth.ErrInvalidNonce, ErrInvalidNonce},
	{oauth.ErrInvalidIDToken, ErrInvalidIDToken},
	{oauth.ErrExchange, ErrUpstream},
	{oauth.ErrProviderDenied, ErrUnauthorized.WithDetail("el proveedor rechazó la autorización")},
	{oauth.ErrCSRFMismatch, ErrCSRFMismatch},
	{oauth.ErrChallengeNotFound, ErrMFAChallengeExpired},
	{oauth.ErrChallengeInUse, ErrMFAChallengeInUse},
	{oauth.ErrProviderConfig, ErrConfigMissing},

	// webhooks
	{webhook.ErrUnknownProvider, ErrUnknownProvider},
	{webhook.ErrSignatureInvalid, ErrSignatureInvalid},
	{webhook.ErrMalformed, ErrMalformedPayload},
	{webhook.ErrStale, ErrStaleWebhook},
	{webhook.ErrReplayHashMismatch, ErrReplayHashMismatch},
	{webhook.ErrTenantUnresolved, ErrTenantUnresolved.WithRetryAfter(nackRetryAfter)},
	{webhook.ErrInFlight, ErrDeliveryInFlight.WithRetryAfter(inFlightRetryAfter)},
	{webhook.ErrVerifierUnavailable, ErrServiceUnavailable.WithRetryAfter(nackRetryAfter)},
	{webhook.ErrStoreUnavailable, ErrServiceUnavailable.WithRetryAfter(unavailableRetryAfter)},

	// infraestructura
	{principal.ErrNotFound, ErrUnauthorized},
	{cache.ErrUnavailable, ErrServiceUnavailable.WithRetryAfter(unavailableRetryAfter)},
	{secretbox.ErrDecryptionFailed, ErrDecryptionFailed},
	{secretbox.ErrKeyMissing, ErrConfigMissing},
	{jwt.ErrKeyMissing, ErrConfigMissing},
	{context.DeadlineExceeded, ErrServiceUnavailable},
}

// FromDomain traduce errores de los servicios a la taxonomía pública. Lo no reconocido es
// INTERNAL_ERROR y la causa queda solo en Err.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}

	var te *auth.ThrottledError
	if errors.As(err, &te) {
		base := ErrRateLimited
		if te.Locked {
			base = ErrSoftLocked
		}
		return base.WithRetryAfter(te.RetryAfter).WithCause(err)
	}

	var pe *auth.PolicyError
	if errors.As(err, &pe) {
		return ErrWeakPassword.WithDetail(strings.Join(pe.Reasons, "; ")).WithCause(err)
	}

	for _, m := range domainTable {
		if errors.Is(err, m.target) {
			return m.app.WithCause(err)
		}
	}
	return ErrInternalServerError.WithCause(err)
}

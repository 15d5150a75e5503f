package errors

import "net/http"

// ---------------------------------------------------------------------------------
// 400 Bad Request
// ---------------------------------------------------------------------------------

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &AppError{
		Code:       "BODY_TOO_LARGE",
		Message:    "El cuerpo de la solicitud excede el tamaño máximo permitido.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrInvalidState = &AppError{
		Code:       "INVALID_STATE",
		Message:    "El flujo de login externo no es válido o expiró.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrStaleWebhook = &AppError{
		Code:       "STALE_WEBHOOK",
		Message:    "El timestamp del evento está fuera de la ventana permitida.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMalformedPayload = &AppError{
		Code:       "MALFORMED_PAYLOAD",
		Message:    "El evento recibido no tiene el formato esperado.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// ---------------------------------------------------------------------------------
// 401 Unauthorized
// ---------------------------------------------------------------------------------

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "No autorizado. Se requiere autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "No se proporcionó token de autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El token es inválido o está malformado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "El token ha expirado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Las credenciales proporcionadas son inválidas.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrMFARequired = &AppError{
		Code:       "MFA_REQUIRED",
		Message:    "Se requiere un segundo factor.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidMFACode = &AppError{
		Code:       "INVALID_MFA_CODE",
		Message:    "El código de verificación es inválido.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrMFAChallengeExpired = &AppError{
		Code:       "MFA_CHALLENGE_EXPIRED",
		Message:    "El desafío de segundo factor no existe o expiró.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrMFAChallengeInUse = &AppError{
		Code:       "MFA_CHALLENGE_IN_USE",
		Message:    "El desafío de segundo factor se está verificando.",
		HTTPStatus: http.StatusConflict,
	}

	ErrSessionRevoked = &AppError{
		Code:       "SESSION_REVOKED",
		Message:    "La sesión fue revocada, inicie sesión nuevamente.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidNonce = &AppError{
		Code:       "INVALID_NONCE",
		Message:    "El nonce del login externo es inválido o ya fue usado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidIDToken = &AppError{
		Code:       "INVALID_ID_TOKEN",
		Message:    "El id_token del proveedor no es válido.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrSignatureInvalid = &AppError{
		Code:       "SIGNATURE_INVALID",
		Message:    "La firma del evento es inválida.",
		HTTPStatus: http.StatusUnauthorized,
	}
)

// ---------------------------------------------------------------------------------
// 403 Forbidden
// ---------------------------------------------------------------------------------

var (
	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "No tiene permisos para realizar esta acción.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrAccountDisabled = &AppError{
		Code:       "ACCOUNT_DISABLED",
		Message:    "La cuenta está deshabilitada.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrIPDenied = &AppError{
		Code:       "IP_DENIED",
		Message:    "El acceso desde esta dirección no está permitido.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrCSRFMismatch = &AppError{
		Code:       "CSRF_MISMATCH",
		Message:    "Token CSRF ausente o inválido.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrOriginDenied = &AppError{
		Code:       "ORIGIN_DENIED",
		Message:    "El origen de la solicitud no está permitido.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrReauthRequired = &AppError{
		Code:       "REAUTH_REQUIRED",
		Message:    "Esta acción requiere una verificación MFA reciente.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrCaptchaRequired = &AppError{
		Code:       "CAPTCHA_REQUIRED",
		Message:    "Se requiere resolver el captcha.",
		HTTPStatus: http.StatusForbidden,
	}
)

// ---------------------------------------------------------------------------------
// 404 / 405
// ---------------------------------------------------------------------------------

var (
	ErrRouteNotFound = &AppError{
		Code:       "ROUTE_NOT_FOUND",
		Message:    "La ruta solicitada no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrUnknownProvider = &AppError{
		Code:       "UNKNOWN_PROVIDER",
		Message:    "El proveedor no está configurado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "El método HTTP no está permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}
)

// ---------------------------------------------------------------------------------
// 409 Conflict
// ---------------------------------------------------------------------------------

var (
	ErrReplayHashMismatch = &AppError{
		Code:       "REPLAY_HASH_MISMATCH",
		Message:    "El evento ya fue recibido con otro contenido.",
		HTTPStatus: http.StatusConflict,
	}

	ErrMFAAlreadyEnabled = &AppError{
		Code:       "MFA_ALREADY_ENABLED",
		Message:    "El segundo factor ya está activo.",
		HTTPStatus: http.StatusConflict,
	}

	ErrMFANotEnabled = &AppError{
		Code:       "MFA_NOT_ENABLED",
		Message:    "El segundo factor no está activo.",
		HTTPStatus: http.StatusConflict,
	}

	ErrMFASetupRequired = &AppError{
		Code:       "MFA_SETUP_REQUIRED",
		Message:    "Primero debe iniciar la configuración del segundo factor.",
		HTTPStatus: http.StatusConflict,
	}
)

// ---------------------------------------------------------------------------------
// 422 Unprocessable Entity
// ---------------------------------------------------------------------------------

var (
	ErrWeakPassword = &AppError{
		Code:       "WEAK_PASSWORD",
		Message:    "La contraseña no cumple con los requisitos de seguridad.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
)

// ---------------------------------------------------------------------------------
// 429 Too Many Requests
// ---------------------------------------------------------------------------------

var (
	ErrRateLimited = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Demasiados intentos. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrSoftLocked = &AppError{
		Code:       "SOFT_LOCKED",
		Message:    "La cuenta está bloqueada temporalmente por intentos fallidos.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// ---------------------------------------------------------------------------------
// 500+
// ---------------------------------------------------------------------------------

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDecryptionFailed = &AppError{
		Code:       "DECRYPTION_FAILED",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrConfigMissing = &AppError{
		Code:       "CONFIG_MISSING",
		Message:    "El servicio no está configurado correctamente.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrUpstream = &AppError{
		Code:       "UPSTREAM_ERROR",
		Message:    "El proveedor externo no respondió correctamente.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "El servicio no está disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	// ErrTenantUnresolved es un NACK: el proveedor debe reintentar.
	ErrTenantUnresolved = &AppError{
		Code:       "TENANT_UNRESOLVED",
		Message:    "No se pudo determinar el destinatario del evento.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrDeliveryInFlight = &AppError{
		Code:       "DELIVERY_IN_FLIGHT",
		Message:    "El evento se está procesando.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }
func Route(v string) zap.Field     { return zap.String("route", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// =================================================================================
// DOMINIO
// =================================================================================

// PrincipalID identifica al usuario de plataforma.
func PrincipalID(v string) zap.Field { return zap.String("principal_id", v) }

// TenantID crea un campo para el ID del tenant.
func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

// JTI identifica un refresh token / sesión.
func JTI(v string) zap.Field { return zap.String("jti", v) }

// Provider es el IdP OAuth o la pasarela de pagos de un webhook.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// EventID es el id de evento que manda el proveedor de webhooks.
func EventID(v string) zap.Field { return zap.String("event_id", v) }

// Identity es el identificador usado para throttling (email normalizado).
// Evitar en prod si el email es sensible.
func Identity(v string) zap.Field { return zap.String("identity", v) }

// =================================================================================
// SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer: handler, service, store.
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

func Key(v string) zap.Field            { return zap.String("key", v) }
func Value(v string) zap.Field          { return zap.String("value", v) }
func Count(v int) zap.Field             { return zap.Int("count", v) }
func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }

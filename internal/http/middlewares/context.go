package middlewares

import (
	"context"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/jwt"
)

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxRequestIDKey ctxKey = "request_id"
)

func withClaims(ctx context.Context, c *jwt.PlatformClaims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, c)
}

func setRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, ctxRequestIDKey, id)
	return audit.WithRequestID(ctx, id)
}

// GetClaims devuelve las claims del access token validado, o nil si la ruta no usa RequireAuth.
func GetClaims(ctx context.Context) *jwt.PlatformClaims {
	c, _ := ctx.Value(ctxClaimsKey).(*jwt.PlatformClaims)
	return c
}

// GetPrincipalID devuelve el sub del access token o "".
func GetPrincipalID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

// GetClientIP devuelve la IP resuelta por WithClientIP.
func GetClientIP(ctx context.Context) string {
	return audit.ClientIP(ctx)
}

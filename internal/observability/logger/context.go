package logger

import (
	"context"

	"go.uber.org/zap"
)

// El middleware de logging guarda en el contexto un logger con request_id; el de auth
// le suma principal_id. Services y stores solo llaman From(ctx).

type ctxKey struct{}

func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithFields devuelve un contexto cuyo logger suma fields al que ya traía.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return ToContext(ctx, From(ctx).With(fields...))
}

// From cae al logger global fuera de un request.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return L()
}

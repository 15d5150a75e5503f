// Package logger expone un logger Zap singleton con scoping por contexto.
//
//   - Singleton: una instancia global inicializada con Init() en main.
//   - Context scoping: cada request lleva su logger con request_id, principal_id, etc.
//   - Entornos: "dev" consola con colores, "prod" JSON. Opcionalmente un archivo rotado.
//
// Uso:
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Login"))
//	log.Warn("throttle degraded", logger.Err(err))
package logger

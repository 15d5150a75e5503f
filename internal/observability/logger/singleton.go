package logger

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Un logger por proceso. cmd/service lo arma con Init antes de servir; cpauthctl y
// los tests que no llaman Init reciben uno de consola en info.
var (
	initOnce sync.Once
	global   atomic.Pointer[zap.Logger]
)

// Init solo tiene efecto la primera vez.
func Init(cfg Config) {
	initOnce.Do(func() { global.Store(build(cfg)) })
}

func L() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	Init(Config{Env: "dev", Level: "info"})
	return global.Load()
}

// Named se usa para sinks sin request (audit, workers).
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Swap reemplaza el logger global hasta llamar a restore. Lo usan los tests que
// capturan entradas con zaptest/observer.
func Swap(l *zap.Logger) (restore func()) {
	L()
	prev := global.Swap(l)
	return func() { global.Store(prev) }
}

func Sync() error {
	if l := global.Load(); l != nil {
		return l.Sync()
	}
	return nil
}

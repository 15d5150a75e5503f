// Package cache provee el KeyValueStore compartido con TTL y primitivas atómicas.
//
// Drivers:
//   - Redis (distribuido, producción)
//   - Memory (in-process, desarrollo/testing y fallback)
//   - Fallback (Redis con degradación a memoria, logueada)
//
// Todas las operaciones read-modify-write (SetNX, CompareAndSwap, WindowAdd, Delete con conteo)
// son atómicas en cada driver: dos requests concurrentes nunca "ganan" el mismo check.
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones del store.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl <= 0 no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX guarda solo si la key no existe. Devuelve true si la escribió.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete elimina la key y devuelve cuántas borró (0 o 1).
	Delete(ctx context.Context, key string) (int64, error)

	// TTL devuelve el tiempo restante. ErrNotFound si no existe, 0 si no expira.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// CompareAndSwap reemplaza old por new solo si el valor actual es old.
	// ttl <= 0 conserva el TTL actual.
	CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error)

	// WindowAdd poda entradas más viejas que now-window, agrega now y devuelve el conteo.
	WindowAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// WindowCount poda y cuenta sin agregar.
	WindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// SetAdd agrega member al set key y renueva el TTL.
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) error

	// SetMembers lista el set (vacío si no existe).
	SetMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config configuración para crear un cliente.
type Config struct {
	Driver    string // "memory" | "redis"
	Addr      string
	Password  string
	DB        int
	Prefix    string
	OpTimeout time.Duration
}

var (
	ErrNotFound = errors.New("cache: key not found")

	// ErrUnavailable envuelve cualquier falla de conexión/timeout del store compartido.
	ErrUnavailable = errors.New("cache: store unavailable")
)

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable indica que el store compartido no respondió.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// New crea un cliente según la configuración.
func New(cfg Config) Client {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix)
	}
}

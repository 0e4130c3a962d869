// Package cache provee un key/value con TTL sobre memoria (go-cache) o Redis.
//
// Lo usan el token store de consent, las sesiones, los grants de autorización
// y las fuentes de reputación. Todas las keys llevan prefijo de dominio
// ("consent:token:", "session:", "code:") y el cliente agrega el prefijo global.
package cache

import (
	"context"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl 0 = no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key (no falla si no existe).
	Delete(ctx context.Context, key string) error

	// Take obtiene y elimina la key en una sola operación atómica.
	// Dos Take concurrentes sobre la misma key: exactamente uno gana.
	Take(ctx context.Context, key string) (string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config para construir un Client.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration // sólo memory
}

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un cliente según cfg.Driver.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}

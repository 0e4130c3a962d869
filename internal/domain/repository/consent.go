package repository

import (
	"context"
	"time"
)

// UserConsent es un consent recordado (sólo existe si el usuario eligió "remember").
type UserConsent struct {
	UserID      string
	Application string
	Scopes      []string
	CreatedAt   time.Time
	// ExpiresAt nil = permanente.
	ExpiresAt *time.Time
}

// Covers indica si el consent sigue vigente en now y cubre todos los scopes pedidos.
func (c UserConsent) Covers(requested []string, now time.Time) bool {
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	have := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		have[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// ConsentRepository persiste consents recordados.
type ConsentRepository interface {
	// Get retorna ErrNotFound si no hay consent para (user, application).
	Get(ctx context.Context, userID, application string) (*UserConsent, error)
	// Upsert une los scopes con los existentes y reemplaza la expiración.
	Upsert(ctx context.Context, c UserConsent) error
	Delete(ctx context.Context, userID, application string) error
}

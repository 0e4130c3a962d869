package repository

import "context"

// User es lo que entrega el colaborador de autenticación.
type User struct {
	ID            string
	UUID          string
	Username      string
	Name          string
	Email         string
	EmailVerified bool
	Active        bool
	Groups        []string
	Attributes    map[string]any
}

// UserRepository resuelve usuarios por id (sesiones) o username.
type UserRepository interface {
	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// Package memory implementa los repositorios en memoria (modo sin DSN y tests).
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// Users es un directorio de usuarios en memoria, sembrado desde el control plane.
type Users struct {
	mu       sync.RWMutex
	byID     map[string]repository.User
	byHandle map[string]string // username (lower) -> id
}

func NewUsers(seed ...repository.User) *Users {
	u := &Users{byID: map[string]repository.User{}, byHandle: map[string]string{}}
	for _, x := range seed {
		_ = u.Put(x)
	}
	return u
}

// Put inserta o reemplaza un usuario.
func (u *Users) Put(x repository.User) error {
	if strings.TrimSpace(x.ID) == "" || strings.TrimSpace(x.Username) == "" {
		return repository.ErrInvalidInput
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if prev, ok := u.byID[x.ID]; ok {
		delete(u.byHandle, strings.ToLower(prev.Username))
	}
	if id, ok := u.byHandle[strings.ToLower(x.Username)]; ok && id != x.ID {
		return repository.ErrConflict
	}
	u.byID[x.ID] = cloneUser(x)
	u.byHandle[strings.ToLower(x.Username)] = x.ID
	return nil
}

func (u *Users) GetByID(_ context.Context, id string) (*repository.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	x, ok := u.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneUser(x)
	return &c, nil
}

func (u *Users) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	u.mu.RLock()
	id, ok := u.byHandle[strings.ToLower(strings.TrimSpace(username))]
	u.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.GetByID(ctx, id)
}

func cloneUser(x repository.User) repository.User {
	if x.Groups != nil {
		x.Groups = append([]string(nil), x.Groups...)
	}
	if x.Attributes != nil {
		attrs := make(map[string]any, len(x.Attributes))
		for k, v := range x.Attributes {
			attrs[k] = v
		}
		x.Attributes = attrs
	}
	return x
}

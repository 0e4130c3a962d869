package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// Consents implementa repository.ConsentRepository en memoria.
type Consents struct {
	mu   sync.RWMutex
	rows map[string]repository.UserConsent
	now  func() time.Time
}

func NewConsents() *Consents {
	return &Consents{rows: map[string]repository.UserConsent{}, now: time.Now}
}

func consentKey(userID, app string) string { return userID + "|" + app }

func (c *Consents) Get(_ context.Context, userID, application string) (*repository.UserConsent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows[consentKey(userID, application)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneConsent(row)
	return &out, nil
}

// Upsert une scopes (preserva orden de llegada) y reemplaza expires_at.
func (c *Consents) Upsert(_ context.Context, in repository.UserConsent) error {
	if in.UserID == "" || in.Application == "" {
		return repository.ErrInvalidInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := consentKey(in.UserID, in.Application)
	row, exists := c.rows[k]
	if !exists {
		row = repository.UserConsent{UserID: in.UserID, Application: in.Application, CreatedAt: in.CreatedAt}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = c.now()
		}
	}
	row.Scopes = unionScopes(row.Scopes, in.Scopes)
	if len(row.Scopes) == 0 {
		return repository.ErrInvalidInput
	}
	row.ExpiresAt = nil
	if in.ExpiresAt != nil {
		t := *in.ExpiresAt
		row.ExpiresAt = &t
	}
	c.rows[k] = row
	return nil
}

func (c *Consents) Delete(_ context.Context, userID, application string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := consentKey(userID, application)
	if _, ok := c.rows[k]; !ok {
		return repository.ErrNotFound
	}
	delete(c.rows, k)
	return nil
}

func unionScopes(have, add []string) []string {
	out := make([]string, 0, len(have)+len(add))
	seen := map[string]struct{}{}
	for _, s := range append(append([]string(nil), have...), add...) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cloneConsent(x repository.UserConsent) repository.UserConsent {
	x.Scopes = append([]string(nil), x.Scopes...)
	if x.ExpiresAt != nil {
		t := *x.ExpiresAt
		x.ExpiresAt = &t
	}
	return x
}

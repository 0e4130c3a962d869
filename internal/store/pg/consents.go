package pg

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// ConsentsPG implementa repository.ConsentRepository.
type ConsentsPG struct {
	db PgExecQuerier
}

func NewConsentsPG(db PgExecQuerier) *ConsentsPG {
	return &ConsentsPG{db: db}
}

func (r *ConsentsPG) Get(ctx context.Context, userID, application string) (*repository.UserConsent, error) {
	const q = `
SELECT user_id, application, granted_scopes, created_at, expires_at
FROM user_consent
WHERE user_id = $1 AND application = $2;
`
	var c repository.UserConsent
	err := r.db.QueryRow(ctx, q, userID, application).
		Scan(&c.UserID, &c.Application, &c.Scopes, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Upsert une los scopes con los existentes (DISTINCT) y reemplaza expires_at.
func (r *ConsentsPG) Upsert(ctx context.Context, c repository.UserConsent) error {
	scopes := normalizeScopes(c.Scopes)
	if c.UserID == "" || c.Application == "" || len(scopes) == 0 {
		return repository.ErrInvalidInput
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	const q = `
INSERT INTO user_consent (user_id, application, granted_scopes, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, application)
DO UPDATE SET
	granted_scopes = (
		SELECT ARRAY(
			SELECT DISTINCT x
			  FROM UNNEST(user_consent.granted_scopes || EXCLUDED.granted_scopes) AS t(x)
		)
	),
	expires_at = EXCLUDED.expires_at;
`
	_, err := r.db.Exec(ctx, q, c.UserID, c.Application, scopes, created, c.ExpiresAt)
	return err
}

func (r *ConsentsPG) Delete(ctx context.Context, userID, application string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_consent WHERE user_id=$1 AND application=$2`, userID, application)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// normalizeScopes: trim + de-dup, preserva orden.
func normalizeScopes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
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

package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// UsersPG implementa repository.UserRepository.
type UsersPG struct {
	db PgExecQuerier
}

func NewUsersPG(db PgExecQuerier) *UsersPG {
	return &UsersPG{db: db}
}

const userColumns = `id, uuid::text, username, name, email, email_verified, active, groups, attributes`

func (r *UsersPG) GetByID(ctx context.Context, id string) (*repository.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id)
}

func (r *UsersPG) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM app_user WHERE username = $1`, username)
}

func (r *UsersPG) get(ctx context.Context, q string, arg string) (*repository.User, error) {
	var (
		u     repository.User
		attrs []byte
	)
	err := r.db.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.UUID, &u.Username, &u.Name, &u.Email, &u.EmailVerified, &u.Active, &u.Groups, &attrs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Attributes = map[string]any{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &u.Attributes); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// Create inserta un usuario (seed / CLI).
func (r *UsersPG) Create(ctx context.Context, u repository.User) error {
	attrs, err := json.Marshal(u.Attributes)
	if err != nil {
		return err
	}
	groups := u.Groups
	if groups == nil {
		groups = []string{}
	}
	const q = `
INSERT INTO app_user (id, uuid, username, name, email, email_verified, active, groups, attributes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING;
`
	tag, err := r.db.Exec(ctx, q, u.ID, u.UUID, u.Username, u.Name, u.Email, u.EmailVerified, u.Active, groups, attrs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

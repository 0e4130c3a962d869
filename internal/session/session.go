// Package session es el adapter por defecto del colaborador de autenticación:
// la UI de login deja una sesión en el cache y el authorize la resuelve por cookie.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dropDatabas3/consentgate/internal/cache"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/consentgate/internal/security/token"
)

const keyPrefix = "sid:"

var (
	// ErrLoginRequired: no hay sesión (o venció). El flujo se suspende en LOGIN_REQUIRED.
	ErrLoginRequired = errors.New("session: login required")
	// ErrAborted: hay sesión pero no se puede autenticar (usuario inexistente o inactivo).
	ErrAborted = errors.New("session: authentication aborted")
)

// Payload es lo que se guarda bajo sid:<sha256(raw)>.
type Payload struct {
	UserID   string    `json:"user_id"`
	AMR      []string  `json:"amr"`
	AuthTime time.Time `json:"auth_time"`
	Expires  time.Time `json:"expires"`
}

// Identity es el resultado de autenticar.
type Identity struct {
	User     *repository.User
	AMR      []string
	AuthTime time.Time
}

// Authenticator es el colaborador de autenticación que consume el orquestador.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (Identity, error)
}

// Store crea y resuelve sesiones sobre cache.Client.
type Store struct {
	cache cache.Client
	users repository.UserRepository
	ttl   time.Duration
	now   func() time.Time
}

type StoreDeps struct {
	Cache cache.Client
	Users repository.UserRepository
	TTL   time.Duration
	Now   func() time.Time
}

func NewStore(d StoreDeps) *Store {
	if d.TTL <= 0 {
		d.TTL = 12 * time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Store{cache: d.Cache, users: d.Users, ttl: d.TTL, now: d.Now}
}

// Create abre una sesión y devuelve el sid crudo (va en la cookie).
func (s *Store) Create(ctx context.Context, userID string, amr []string) (string, time.Time, error) {
	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: generate sid: %w", err)
	}
	now := s.now()
	p := Payload{UserID: userID, AMR: slices.Clone(amr), AuthTime: now, Expires: now.Add(s.ttl)}
	b, err := json.Marshal(p)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.cache.Set(ctx, keyPrefix+tokens.SHA256Base64URL(raw), string(b), s.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("session: store: %w", err)
	}
	return raw, p.Expires, nil
}

// Delete cierra la sesión (logout). Idempotente.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.cache.Delete(ctx, keyPrefix+tokens.SHA256Base64URL(sessionID))
}

// Authenticate resuelve la sesión y el usuario.
func (s *Store) Authenticate(ctx context.Context, sessionID string) (Identity, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("session.Authenticate"))

	if sessionID == "" {
		return Identity{}, ErrLoginRequired
	}
	raw, err := s.cache.Get(ctx, keyPrefix+tokens.SHA256Base64URL(sessionID))
	if err != nil {
		if cache.IsNotFound(err) {
			return Identity{}, ErrLoginRequired
		}
		return Identity{}, fmt.Errorf("session: lookup: %w", err)
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		log.Warn("corrupt session payload", logger.Err(err))
		return Identity{}, ErrLoginRequired
	}
	if !s.now().Before(p.Expires) {
		return Identity{}, ErrLoginRequired
	}

	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Warn("session user not found", logger.UserID(p.UserID))
			return Identity{}, fmt.Errorf("%w: unknown user", ErrAborted)
		}
		return Identity{}, fmt.Errorf("session: load user: %w", err)
	}
	if !u.Active {
		log.Info("inactive user", logger.UserID(u.ID))
		return Identity{}, fmt.Errorf("%w: user inactive", ErrAborted)
	}
	// amr sale tal cual quedó en la sesión, sin inferir métodos
	return Identity{User: u, AMR: slices.Clone(p.AMR), AuthTime: p.AuthTime}, nil
}

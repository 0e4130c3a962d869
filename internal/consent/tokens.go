package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/consentgate/internal/cache"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/consentgate/internal/security/token"
)

const tokenKeyPrefix = "consent:token:"

// ErrTokenExpired cubre token vencido, ya consumido o desconocido.
var ErrTokenExpired = errors.New("consent: continuation token expired or already used")

// Collaborator suspende y reanuda flujos en consent.
type Collaborator interface {
	// Prompt guarda p y devuelve el continuation token.
	Prompt(ctx context.Context, p Pending) (Challenge, error)
	// Take consume el token (un solo uso). Replay o vencido: ErrTokenExpired.
	Take(ctx context.Context, token string) (Pending, error)
}

// TokenStore implementa Collaborator sobre cache.Client.
type TokenStore struct {
	cache cache.Client
	ttl   time.Duration
	now   func() time.Time
}

type TokenStoreDeps struct {
	Cache cache.Client
	// TTL por defecto; Prompt puede recibir un Pending con ExpiresAt ya fijado.
	TTL time.Duration
	Now func() time.Time
}

func NewTokenStore(d TokenStoreDeps) *TokenStore {
	if d.TTL <= 0 {
		d.TTL = 10 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &TokenStore{cache: d.Cache, ttl: d.TTL, now: d.Now}
}

func (s *TokenStore) Prompt(ctx context.Context, p Pending) (Challenge, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("consent.Prompt"))

	now := s.now()
	if p.ExpiresAt.IsZero() || !p.ExpiresAt.After(now) {
		p.ExpiresAt = now.Add(s.ttl)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	token, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return Challenge{}, fmt.Errorf("consent: generate token: %w", err)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return Challenge{}, fmt.Errorf("consent: encode pending: %w", err)
	}

	key := tokenKeyPrefix + tokens.SHA256Base64URL(token)
	if err := s.cache.Set(ctx, key, string(payload), p.ExpiresAt.Sub(now)); err != nil {
		return Challenge{}, fmt.Errorf("consent: store token: %w", err)
	}

	log.Debug("consent pending", logger.ID(p.ID), logger.UserID(p.UserID), logger.ClientID(p.ClientID))
	return Challenge{Token: token, ExpiresAt: p.ExpiresAt}, nil
}

func (s *TokenStore) Take(ctx context.Context, token string) (Pending, error) {
	if token == "" {
		return Pending{}, ErrTokenExpired
	}
	raw, err := s.cache.Take(ctx, tokenKeyPrefix+tokens.SHA256Base64URL(token))
	if err != nil {
		if cache.IsNotFound(err) {
			return Pending{}, ErrTokenExpired
		}
		return Pending{}, fmt.Errorf("consent: take token: %w", err)
	}

	var p Pending
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Pending{}, fmt.Errorf("consent: decode pending: %w", err)
	}
	// el TTL del backend puede ser laxo; la expiración del servidor manda
	if !s.now().Before(p.ExpiresAt) {
		return Pending{}, ErrTokenExpired
	}
	return p, nil
}

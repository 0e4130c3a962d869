// Package issuance guarda el resultado de una autorización bajo un code de un
// solo uso, lo canjea por tokens firmados y sirve UserInfo.
package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/consentgate/internal/cache"
	"github.com/dropDatabas3/consentgate/internal/claims"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/jwt"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/consentgate/internal/security/token"
)

const (
	codePrefix  = "code:"
	grantPrefix = "grant:"
)

var (
	ErrInvalidGrant  = errors.New("issuance: invalid or expired authorization code")
	ErrInvalidClient = errors.New("issuance: client authentication failed")
	ErrInvalidToken  = errors.New("issuance: invalid access token")
)

// Grant es lo que queda guardado entre authorize y token.
type Grant struct {
	ID          string         `json:"id"`
	ClientID    string         `json:"client_id"`
	Application string         `json:"application"`
	Issuer      string         `json:"issuer"`
	RedirectURI string         `json:"redirect_uri"`
	Scopes      []string       `json:"scopes"`
	Subject     string         `json:"sub"`
	IDToken     map[string]any `json:"id_token"`
	UserInfo    map[string]any `json:"userinfo"`
}

// TokenResponse es el cuerpo de /token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type ExchangeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type Service struct {
	cache  cache.Client
	signer *jwt.Signer
	now    func() time.Time
}

type ServiceDeps struct {
	Cache  cache.Client
	Signer *jwt.Signer
	Now    func() time.Time
}

func NewService(d ServiceDeps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{cache: d.Cache, signer: d.Signer, now: d.Now}
}

// IssueCode guarda los claims materializados y devuelve el authorization code.
func (s *Service) IssueCode(ctx context.Context, p repository.Provider, app repository.Application, issuer, redirectURI string, c claims.Claims) (string, error) {
	g := Grant{
		ID:          uuid.NewString(),
		ClientID:    p.ClientID,
		Application: app.Slug,
		Issuer:      issuer,
		RedirectURI: redirectURI,
		Scopes:      slices.Clone(c.Scopes),
		Subject:     c.Subject,
		IDToken:     c.IDToken,
		UserInfo:    c.UserInfo,
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("issuance: encode grant: %w", err)
	}
	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}
	ttl := p.AccessCodeValidity
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.cache.Set(ctx, codePrefix+tokens.SHA256Base64URL(code), string(b), ttl); err != nil {
		return "", fmt.Errorf("issuance: store code: %w", err)
	}
	return code, nil
}

// Exchange canjea el code (un solo uso) por ID token + access token.
func (s *Service) Exchange(ctx context.Context, p repository.Provider, req ExchangeRequest) (TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("issuance.Exchange"), logger.ClientID(req.ClientID))

	if p.ClientType == repository.ClientConfidential {
		if req.ClientSecret == "" || !tokens.CheckSecret(p.SecretHash, req.ClientSecret) {
			return TokenResponse{}, ErrInvalidClient
		}
	}

	raw, err := s.cache.Take(ctx, codePrefix+tokens.SHA256Base64URL(req.Code))
	if err != nil {
		if cache.IsNotFound(err) {
			return TokenResponse{}, ErrInvalidGrant
		}
		return TokenResponse{}, err
	}
	var g Grant
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return TokenResponse{}, fmt.Errorf("issuance: decode grant: %w", err)
	}
	if g.ClientID != req.ClientID || g.RedirectURI != req.RedirectURI {
		log.Warn("code presented by another client or redirect uri")
		return TokenResponse{}, ErrInvalidGrant
	}

	idToken, err := s.signer.Sign(g.IDToken)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("issuance: sign id_token: %w", err)
	}

	validity := p.TokenValidity
	if validity <= 0 {
		validity = 5 * time.Minute
	}
	now := s.now()
	scope := strings.Join(g.Scopes, " ")
	access, err := s.signer.Sign(map[string]any{
		"iss":   g.Issuer,
		"sub":   g.Subject,
		"aud":   g.ClientID,
		"iat":   now.Unix(),
		"exp":   now.Add(validity).Unix(),
		"jti":   g.ID,
		"scope": scope,
	})
	if err != nil {
		return TokenResponse{}, fmt.Errorf("issuance: sign access token: %w", err)
	}

	// UserInfo vive lo mismo que el access token
	if err := s.cache.Set(ctx, grantPrefix+g.ID, raw, validity); err != nil {
		return TokenResponse{}, fmt.Errorf("issuance: store grant: %w", err)
	}

	log.Info("tokens issued", logger.AppSlug(g.Application))
	return TokenResponse{
		AccessToken: access,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(validity.Seconds()),
		Scope:       scope,
	}, nil
}

// UserInfo verifica el access token y devuelve el payload de UserInfo
// materializado en la misma pasada que el ID token.
func (s *Service) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	tc, err := s.signer.Parse(accessToken, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	jti, _ := tc["jti"].(string)
	if jti == "" {
		return nil, ErrInvalidToken
	}
	raw, err := s.cache.Get(ctx, grantPrefix+jti)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	var g Grant
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("issuance: decode grant: %w", err)
	}
	if iss, _ := tc["iss"].(string); iss != g.Issuer {
		return nil, ErrInvalidToken
	}
	return g.UserInfo, nil
}

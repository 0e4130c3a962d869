// Package oauth expone el pipeline de autorización sobre HTTP:
// authorize, consent, token y userinfo.
package oauth

import (
	"context"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/flow"
	"github.com/dropDatabas3/consentgate/internal/issuance"
)

// Authorizer es el orquestador visto desde el transporte.
type Authorizer interface {
	Authorize(ctx context.Context, req flow.Request) (flow.Result, error)
	Resume(ctx context.Context, in flow.ResumeRequest) (flow.Result, error)
}

// TokenService canjea codes y sirve userinfo.
type TokenService interface {
	Exchange(ctx context.Context, p repository.Provider, req issuance.ExchangeRequest) (issuance.TokenResponse, error)
	UserInfo(ctx context.Context, accessToken string) (map[string]any, error)
}

// Deps agrupa lo que necesitan los controllers OAuth.
type Deps struct {
	Flow      Authorizer
	Tokens    TokenService
	Snapshots flow.SnapshotSource
	// CookieName es la cookie de sesión que lee authorize. Default "sid".
	CookieName string
	// LoginURL es la UI de login; vacío = LOGIN_REQUIRED responde 401 JSON.
	LoginURL string
	// ConsentPath es donde la UI de consent postea la decisión.
	ConsentPath string
}

// Controllers agrupa todos los controllers del paquete.
type Controllers struct {
	Authorize *AuthorizeController
	Consent   *ConsentController
	Token     *TokenController
	UserInfo  *UserInfoController
}

// NewControllers crea todos los controllers OAuth.
func NewControllers(d Deps) *Controllers {
	if d.CookieName == "" {
		d.CookieName = "sid"
	}
	if d.ConsentPath == "" {
		d.ConsentPath = "/application/o/consent/"
	}
	rr := &resultRenderer{loginURL: d.LoginURL, consentPath: d.ConsentPath}
	return &Controllers{
		Authorize: NewAuthorizeController(d.Flow, rr, d.CookieName),
		Consent:   NewConsentController(d.Flow, rr),
		Token:     NewTokenController(d.Tokens, d.Snapshots),
		UserInfo:  NewUserInfoController(d.Tokens),
	}
}

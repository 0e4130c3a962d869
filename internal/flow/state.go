// Package flow orquesta un authorization request: valida el redirect, corre
// los stages del flow (authentication, policy, consent) y materializa claims.
package flow

import (
	"time"

	"github.com/dropDatabas3/consentgate/internal/claims"
	"github.com/dropDatabas3/consentgate/internal/controlplane"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// State es un estado de la máquina de autorización.
type State string

const (
	StateStart             State = "START"
	StateRedirectValidated State = "REDIRECT_VALIDATED"
	StateAuthenticated     State = "AUTHENTICATED"
	StatePolicyChecked     State = "POLICY_CHECKED"
	StateConsentPending    State = "CONSENT_PENDING"
	StateConsentDecided    State = "CONSENT_DECIDED"
	StateClaimsIssued      State = "CLAIMS_ISSUED"

	// Salidas de error
	StateRedirectError        State = "REDIRECT_ERROR"
	StateAccessDenied         State = "ACCESS_DENIED"
	StateConsentDenied        State = "CONSENT_DENIED"
	StateRequestInvalid       State = "REQUEST_INVALID"
	StateAuthenticationFailed State = "AUTHENTICATION_FAILED"

	// Suspensión: falta sesión, el transporte manda a la UI de login.
	StateLoginRequired State = "LOGIN_REQUIRED"
)

// Terminal indica si el flujo terminó (no queda suspendido).
func (s State) Terminal() bool {
	switch s {
	case StateConsentPending, StateLoginRequired:
		return false
	}
	return true
}

// ResponseTypeCode es el único response_type soportado.
const ResponseTypeCode = "code"

// Request es el authorization request entrante, ya decodificado por el transporte.
type Request struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scopes       []string
	State        string
	Nonce        string
	// SessionID es la cookie de sesión; vacío = sin sesión.
	SessionID string
	ClientIP  string
}

// ConsentPrompt es lo que necesita la UI de consent.
type ConsentPrompt struct {
	Token     string
	ExpiresAt time.Time
	Scopes    []controlplane.ScopeDescription
}

// Result es la salida de Authorize o Resume.
type Result struct {
	State    State
	Trace    []State
	Reason   string
	Messages []string

	Provider    repository.Provider
	Application repository.Application
	// RedirectURI sólo se completa una vez validado.
	RedirectURI string
	// ResponseState es el "state" OAuth a devolver al cliente.
	ResponseState string

	Consent *ConsentPrompt
	Claims  *claims.Claims
	Issuer  string
	// Code es el authorization code (sólo en CLAIMS_ISSUED con issuer de codes).
	Code string
}

// Granted indica éxito.
func (r Result) Granted() bool { return r.State == StateClaimsIssued }

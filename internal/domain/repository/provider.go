package repository

import "time"

// MatchingMode define cómo se compara un redirect URI registrado.
type MatchingMode string

const (
	// MatchStrict compara byte a byte, sin normalización.
	MatchStrict MatchingMode = "strict"
	// MatchRegex exige match completo (anclado) del patrón.
	MatchRegex MatchingMode = "regex"
)

// RedirectURI es una entrada registrada en el provider. El orden importa: gana el primero.
type RedirectURI struct {
	MatchingMode MatchingMode
	URL          string
}

type ClientType string

const (
	ClientConfidential ClientType = "confidential"
	ClientPublic       ClientType = "public"
)

// SubMode define qué valor se usa como claim "sub".
type SubMode string

const (
	SubHashedUserID SubMode = "hashed_user_id"
	SubUserID       SubMode = "user_id"
	SubUserUUID     SubMode = "user_uuid"
	SubUsername     SubMode = "user_username"
	SubEmail        SubMode = "user_email"
)

// Provider es la configuración OAuth2/OIDC de una aplicación.
//
// Invariantes (validadas al construir el snapshot):
//   - ClientID es único.
//   - Un client confidential tiene al menos un redirect URI y un SecretHash.
type Provider struct {
	Name              string
	ClientID          string
	ClientType        ClientType
	SecretHash        string
	SigningKey        string
	RedirectURIs      []RedirectURI
	AuthorizationFlow string
	// PropertyMappings son nombres de ScopeMapping; su orden es el orden canónico de merge.
	PropertyMappings       []string
	SubMode                SubMode
	IncludeClaimsInIDToken bool
	AccessCodeValidity     time.Duration
	TokenValidity          time.Duration
}

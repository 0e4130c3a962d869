// Package jwt firma y verifica los tokens emitidos (EdDSA, golang-jwt/v5).
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("jwt: invalid token")
	ErrInvalidIssuer = errors.New("jwt: invalid issuer")
	ErrUnknownKID    = errors.New("jwt: unknown kid")
)

// Signer firma claims ya materializados. El iss lo decide quien arma los claims
// (issuer por aplicación), no el signer.
type Signer struct {
	Keys *KeySet
}

func NewSigner(ks *KeySet) *Signer { return &Signer{Keys: ks} }

// Keyfunc elige la pubkey por 'kid'; sin kid usa la activa.
func (s *Signer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" && kid != s.Keys.KID {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKID, kid)
		}
		return s.Keys.Pub, nil
	}
}

// SignRaw firma un MapClaims arbitrario con header kid/typ.
func (s *Signer) SignRaw(claims jwtv5.MapClaims) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = s.Keys.KID
	tk.Header["typ"] = "JWT"
	return tk.SignedString(s.Keys.Priv)
}

// Sign copia claims a un MapClaims y firma.
func (s *Signer) Sign(claims map[string]any) (string, error) {
	mc := make(jwtv5.MapClaims, len(claims))
	for k, v := range claims {
		mc[k] = v
	}
	return s.SignRaw(mc)
}

// Parse valida firma EdDSA, exp (obligatorio, 30s de tolerancia) y, si se
// indica, el issuer. Devuelve los claims.
func (s *Signer) Parse(token, expectedIss string) (map[string]any, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(30 * time.Second),
	}
	if expectedIss != "" {
		opts = append(opts, jwtv5.WithIssuer(expectedIss))
	}
	tok, err := jwtv5.Parse(token, s.Keyfunc(), opts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenInvalidIssuer) {
			return nil, ErrInvalidIssuer
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

package oauth

import (
	"net/http"

	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
)

// JWKSController sirve las claves públicas de firma.
type JWKSController struct {
	body []byte
}

func NewJWKSController(jwksJSON []byte) *JWKSController {
	return &JWKSController{body: jwksJSON}
}

// Keys handles GET /application/o/{slug}/jwks/. Todas las aplicaciones
// comparten el mismo keyset.
func (c *JWKSController) Keys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(c.body)
}

package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SecurityHeaders configura WithSecurityHeaders.
type SecurityHeaders struct {
	// NoStore marca la respuesta como no cacheable. Va en todo lo que lleva
	// codes, tokens, claims o el consent challenge.
	NoStore bool
	// HSTS sólo se manda sobre https. 0 = 180 días.
	HSTSMaxAge time.Duration
}

// Las páginas de error del authorize son HTML sin scripts: la CSP permite
// sólo estilos inline y no deja que otra origin las embeba.
const authorizeCSP = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'; base-uri 'none'; form-action 'self'"

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// WithSecurityHeaders inyecta las cabeceras de seguridad de la superficie OAuth.
// Referrer-Policy no-referrer evita que code y state viajen en el Referer.
func WithSecurityHeaders(cfg SecurityHeaders) Middleware {
	if cfg.HSTSMaxAge <= 0 {
		cfg.HSTSMaxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.Itoa(int(cfg.HSTSMaxAge/time.Second)) + "; includeSubDomains"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", authorizeCSP)
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			if cfg.NoStore {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
			}
			if isHTTPS(r) {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

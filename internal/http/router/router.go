// Package router arma el chi.Router con todas las rutas del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/consentgate/internal/http/controllers/health"
	"github.com/dropDatabas3/consentgate/internal/http/controllers/oauth"
	"github.com/dropDatabas3/consentgate/internal/http/controllers/session"
	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	mw "github.com/dropDatabas3/consentgate/internal/http/middlewares"
)

type Deps struct {
	OAuth  *oauth.Controllers
	Health *health.HealthController
	// Session es opcional; DevLogin sólo se monta con DevLogin=true.
	Session  *session.SessionController
	DevLogin bool
	// JWKS es opcional.
	JWKS *oauth.JWKSController
	// Metrics es opcional (promhttp).
	Metrics http.Handler
}

// New registra las rutas:
//
//	/readyz, /metrics                       sin logging (muy frecuentes)
//	/application/o/authorize/               GET|POST
//	/application/o/consent/                 POST
//	/application/o/token/                   POST
//	/application/o/userinfo/                GET|POST
//	/application/o/session/end/             POST
//	/application/o/session/dev-login/       POST (sólo dev)
//	/application/o/{slug}/jwks/             GET
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRequestID(), mw.WithRecover())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})

	r.Group(func(r chi.Router) {
		if d.Health != nil {
			r.HandleFunc("/readyz", d.Health.Readyz)
		}
		if d.Metrics != nil {
			r.Handle("/metrics", d.Metrics)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.WithLogging(), mw.WithSecurityHeaders(mw.SecurityHeaders{NoStore: true}))

		c := d.OAuth
		r.HandleFunc("/application/o/authorize/", c.Authorize.Authorize)
		r.HandleFunc("/application/o/consent/", c.Consent.Decide)
		r.HandleFunc("/application/o/token/", c.Token.Exchange)
		r.HandleFunc("/application/o/userinfo/", c.UserInfo.GetUserInfo)

		if d.Session != nil {
			r.HandleFunc("/application/o/session/end/", d.Session.Logout)
			if d.DevLogin {
				r.HandleFunc("/application/o/session/dev-login/", d.Session.DevLogin)
			}
		}
	})

	if d.JWKS != nil {
		r.With(mw.WithLogging(), mw.WithSecurityHeaders(mw.SecurityHeaders{})).HandleFunc("/application/o/{slug}/jwks/", d.JWKS.Keys)
	}
	return r
}

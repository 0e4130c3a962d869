package oauth

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/consentgate/internal/flow"
	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	mw "github.com/dropDatabas3/consentgate/internal/http/middlewares"
)

// resultRenderer traduce un flow.Result a la respuesta HTTP.
// Un redirect al cliente sólo ocurre con un redirect_uri ya validado.
type resultRenderer struct {
	loginURL    string
	consentPath string
}

// ConsentChallenge es el 200 JSON de CONSENT_PENDING para la UI de consent.
type ConsentChallenge struct {
	Status      string          `json:"status"`
	Token       string          `json:"consent_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
	ConsentURL  string          `json:"consent_url"`
	Application ApplicationView `json:"application"`
	Scopes      []ScopeView     `json:"scopes"`
}

type ApplicationView struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type ScopeView struct {
	Scope       string `json:"scope"`
	Description string `json:"description"`
}

func (rr *resultRenderer) render(w http.ResponseWriter, r *http.Request, res flow.Result, returnTo string) {
	switch res.State {
	case flow.StateClaimsIssued:
		loc := res.RedirectURI
		if res.Code != "" {
			loc = addQueryParam(loc, "code", res.Code)
		}
		if res.ResponseState != "" {
			loc = addQueryParam(loc, "state", res.ResponseState)
		}
		http.Redirect(w, r, loc, http.StatusFound)

	case flow.StateConsentPending:
		rr.consentChallenge(w, res)

	case flow.StateLoginRequired:
		if rr.loginURL == "" {
			httperrors.WriteError(w, httperrors.New(http.StatusUnauthorized, "login_required", "an authenticated session is required"))
			return
		}
		http.Redirect(w, r, addQueryParam(rr.loginURL, "return_to", returnTo), http.StatusFound)

	case flow.StateRequestInvalid:
		if res.RedirectURI != "" {
			// sólo response_type llega acá con el redirect ya validado
			loc := addQueryParam(res.RedirectURI, "error", "unsupported_response_type")
			loc = addQueryParam(loc, "error_description", res.Reason)
			if res.ResponseState != "" {
				loc = addQueryParam(loc, "state", res.ResponseState)
			}
			http.Redirect(w, r, loc, http.StatusFound)
			return
		}
		writePage(w, r, http.StatusBadRequest, page{Title: "Request Error", Reason: res.Reason})

	case flow.StateRedirectError:
		writePage(w, r, http.StatusBadRequest, page{
			Title:       "Redirect URI Error",
			Application: res.Application.Name,
			Reason:      "The request contained a redirect_uri that is not registered for this client.",
		})

	case flow.StateAuthenticationFailed:
		writePage(w, r, http.StatusForbidden, page{Title: "Authentication failed", Application: res.Application.Name, Reason: res.Reason})

	case flow.StateAccessDenied, flow.StateConsentDenied:
		writePage(w, r, http.StatusForbidden, page{
			Title:       "Permission denied",
			Application: res.Application.Name,
			Reason:      res.Reason,
			Messages:    res.Messages,
		})

	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithDetail("unexpected flow state "+string(res.State)))
	}
}

func (rr *resultRenderer) consentChallenge(w http.ResponseWriter, res flow.Result) {
	if res.Consent == nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithDetail("consent pending without challenge"))
		return
	}
	ch := ConsentChallenge{
		Status:      "consent_required",
		Token:       res.Consent.Token,
		ExpiresAt:   res.Consent.ExpiresAt.UTC(),
		ConsentURL:  rr.consentPath,
		Application: ApplicationView{Slug: res.Application.Slug, Name: res.Application.Name},
		Scopes:      make([]ScopeView, 0, len(res.Consent.Scopes)),
	}
	for _, s := range res.Consent.Scopes {
		ch.Scopes = append(ch.Scopes, ScopeView{Scope: s.Scope, Description: s.Description})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ch)
}

// ─── Páginas de error in-page ───

type page struct {
	Title       string
	Application string
	Reason      string
	Messages    []string
	RequestID   string
}

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>body{font-family:sans-serif;max-width:36rem;margin:4rem auto;color:#1f2328}small{color:#656d76}</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Application}}<p>Application: <strong>{{.Application}}</strong></p>{{end}}
{{if .Reason}}<p>{{.Reason}}</p>{{end}}
{{if .Messages}}<ul>{{range .Messages}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .RequestID}}<p><small>Request ID: {{.RequestID}}</small></p>{{end}}
</body>
</html>
`))

func writePage(w http.ResponseWriter, r *http.Request, status int, p page) {
	p.RequestID = mw.GetRequestID(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, p)
}

// addQueryParam appends a query parameter to a URL.
func addQueryParam(u, key, value string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

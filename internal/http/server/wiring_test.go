package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/consentgate/internal/config"
)

const controlPlaneYAML = `
users:
  - id: "42"
    username: alice
    name: Alice A
    email: alice@example.com
    email_verified: true
    groups: [staff]
  - id: "7"
    username: mallory
    name: Mallory
    groups: [contractors]

policies:
  - name: staff-only
    kind: expression
    expression: '"staff" in user.groups'

flows:
  - slug: implicit-consent
    stages:
      - kind: authentication
      - kind: policy
      - kind: consent
        consent: {mode: implied}

providers:
  - name: CLI
    client_id: cli
    client_type: public
    authorization_flow: implicit-consent
    redirect_uris:
      - {matching_mode: strict, url: "http://localhost:9009/"}

applications:
  - slug: cli
    name: Command Line
    provider: cli
    policy_bindings:
      - {policy: staff-only}
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "controlplane.yaml")
	require.NoError(t, os.WriteFile(path, []byte(controlPlaneYAML), 0o600))

	cfg := config.Default()
	cfg.App.Env = "dev"
	cfg.Cache.Kind = "memory"
	cfg.Storage.DSN = ""
	cfg.JWT.SigningKeySeed = ""
	cfg.Server.BaseURL = "https://id.example.com"
	cfg.Server.LoginURL = "https://id.example.com/login"
	cfg.ControlPlane.Path = path

	app, err := Build(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Cleanup() })
	return app
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, username string) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {username}}
	req := httptest.NewRequest(http.MethodPost, "/application/o/session/dev-login/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(h, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func authorizeURL(scope string) string {
	q := url.Values{
		"client_id":     {"cli"},
		"redirect_uri":  {"http://localhost:9009/"},
		"response_type": {"code"},
		"scope":         {scope},
		"state":         {"xyz"},
		"nonce":         {"n-1"},
	}
	return "/application/o/authorize/?" + q.Encode()
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestEndToEnd_ConsentCodeTokenUserInfo(t *testing.T) {
	app := newTestApp(t)
	h := app.Handler
	sid := login(t, h, "alice")

	// implied + offline_access => consent
	req := httptest.NewRequest(http.MethodGet, authorizeURL("openid email profile offline_access"), nil)
	req.AddCookie(sid)
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ch struct {
		Status      string `json:"status"`
		Token       string `json:"consent_token"`
		Application struct {
			Slug string `json:"slug"`
			Name string `json:"name"`
		} `json:"application"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ch))
	require.Equal(t, "consent_required", ch.Status)
	require.NotEmpty(t, ch.Token)
	require.Equal(t, "Command Line", ch.Application.Name)

	rec = serve(h, postForm("/application/o/consent/", url.Values{"token": {ch.Token}, "approve": {"true"}}))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "localhost:9009", loc.Host)
	require.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	// replay del continuation token => EXPIRED => 403 in-page
	rec = serve(h, postForm("/application/o/consent/", url.Values{"token": {ch.Token}, "approve": {"true"}}))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "consent request expired")
	require.Empty(t, rec.Header().Get("Location"))

	tokenForm := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"client_id":    {"cli"},
		"redirect_uri": {"http://localhost:9009/"},
	}
	rec = serve(h, postForm("/application/o/token/", tokenForm))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var tr struct {
		AccessToken string `json:"access_token"`
		IDToken     string `json:"id_token"`
		Scope       string `json:"scope"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tr))
	require.NotEmpty(t, tr.IDToken)
	require.Equal(t, "openid email profile offline_access", tr.Scope)

	// code de un solo uso
	rec = serve(h, postForm("/application/o/token/", tokenForm))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_grant")

	req = httptest.NewRequest(http.MethodGet, "/application/o/userinfo/", nil)
	req.Header.Set("Authorization", "Bearer "+tr.AccessToken)
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "alice@example.com", info["email"])
	assert.Equal(t, "Alice A", info["name"])
	assert.NotEmpty(t, info["sub"])
}

func TestEndToEnd_ImpliedWithoutOfflineAccessSkipsConsent(t *testing.T) {
	app := newTestApp(t)
	sid := login(t, app.Handler, "alice")

	req := httptest.NewRequest(http.MethodGet, authorizeURL("openid email"), nil)
	req.AddCookie(sid)
	rec := serve(app.Handler, req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), "http://localhost:9009/?code="))
}

func TestEndToEnd_PolicyDeniedRendersInPage(t *testing.T) {
	app := newTestApp(t)
	sid := login(t, app.Handler, "mallory")

	req := httptest.NewRequest(http.MethodGet, authorizeURL("openid offline_access"), nil)
	req.AddCookie(sid)
	rec := serve(app.Handler, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Permission denied")
	require.Empty(t, rec.Header().Get("Location"))
}

func TestEndToEnd_RedirectMismatchNeverRedirects(t *testing.T) {
	app := newTestApp(t)

	for name, redirectURI := range map[string]string{
		"missing slash":  "http://localhost:9009",
		"trailing space": "http://localhost:9009/ ",
		"leading space":  " http://localhost:9009/",
	} {
		t.Run(name, func(t *testing.T) {
			q := url.Values{
				"client_id":     {"cli"},
				"redirect_uri":  {redirectURI},
				"response_type": {"code"},
				"scope":         {"openid"},
			}
			rec := serve(app.Handler, httptest.NewRequest(http.MethodGet, "/application/o/authorize/?"+q.Encode(), nil))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), "Redirect URI Error")
			require.Empty(t, rec.Header().Get("Location"))
		})
	}
}

func TestEndToEnd_NoSessionRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app.Handler, httptest.NewRequest(http.MethodGet, authorizeURL("openid"), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "id.example.com", loc.Host)
	require.Equal(t, "/login", loc.Path)
	require.True(t, strings.HasPrefix(loc.Query().Get("return_to"), "/application/o/authorize/?"))
}

func TestEndToEnd_Infra(t *testing.T) {
	app := newTestApp(t)
	h := app.Handler

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"control_plane":"up"`)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/application/o/cli/jwks/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"OKP"`)

	// una request autorizada para que el contador tenga serie
	serve(h, httptest.NewRequest(http.MethodGet, authorizeURL("openid"), nil))
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "consentgate_authorization_outcomes_total")
	require.Contains(t, rec.Body.String(), "consentgate_http_requests_total")
}

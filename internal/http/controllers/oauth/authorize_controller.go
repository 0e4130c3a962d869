package oauth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/consentgate/internal/flow"
	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	mw "github.com/dropDatabas3/consentgate/internal/http/middlewares"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// AuthorizeController handles the OAuth2 authorization endpoint.
type AuthorizeController struct {
	flow       Authorizer
	rr         *resultRenderer
	cookieName string
}

func NewAuthorizeController(f Authorizer, rr *resultRenderer, cookieName string) *AuthorizeController {
	return &AuthorizeController{flow: f, rr: rr, cookieName: cookieName}
}

// Authorize handles GET|POST /application/o/authorize/.
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthorizeController.Authorize"))

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	w.Header().Add("Vary", "Cookie")

	// query + form (POST) mergeados
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("malformed authorization request"))
		return
	}
	f := r.Form
	req := flow.Request{
		ClientID:     strings.TrimSpace(f.Get("client_id")),
		RedirectURI:  f.Get("redirect_uri"),
		ResponseType: strings.TrimSpace(f.Get("response_type")),
		Scopes:       strings.Fields(f.Get("scope")),
		State:        f.Get("state"),
		Nonce:        f.Get("nonce"),
		ClientIP:     mw.ClientIP(r),
	}
	if ck, err := r.Cookie(c.cookieName); err == nil {
		req.SessionID = ck.Value
	}

	log.Debug("authorize request",
		logger.ClientID(req.ClientID),
		logger.String("response_type", req.ResponseType),
		logger.Strings("scopes", req.Scopes),
		logger.Bool("session", req.SessionID != ""))

	res, err := c.flow.Authorize(ctx, req)
	if err != nil {
		log.Error("authorize failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	// return_to siempre como GET, aunque el request original haya sido POST
	returnTo := r.URL.Path + "?" + f.Encode()
	c.rr.render(w, r, res, returnTo)
}

package oauth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/consentgate/internal/consent"
	"github.com/dropDatabas3/consentgate/internal/flow"
	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// ConsentController recibe la decisión de la UI de consent.
type ConsentController struct {
	flow Authorizer
	rr   *resultRenderer
}

func NewConsentController(f Authorizer, rr *resultRenderer) *ConsentController {
	return &ConsentController{flow: f, rr: rr}
}

// Decide handles POST /application/o/consent/ (token, approve, remember).
func (c *ConsentController) Decide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ConsentController.Decide"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("malformed consent form"))
		return
	}

	token := strings.TrimSpace(r.PostForm.Get("token"))
	if token == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("token is required"))
		return
	}
	in := flow.ResumeRequest{
		Token:    token,
		Decision: consent.Denied,
		Remember: truthy(r.PostForm.Get("remember")),
	}
	if truthy(r.PostForm.Get("approve")) {
		in.Decision = consent.Approved
	}

	res, err := c.flow.Resume(ctx, in)
	if err != nil {
		log.Error("resume failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	c.rr.render(w, r, res, "")
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

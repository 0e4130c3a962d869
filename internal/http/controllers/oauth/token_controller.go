package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/consentgate/internal/flow"
	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	"github.com/dropDatabas3/consentgate/internal/issuance"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// TokenController es el /token mínimo: sólo authorization_code.
type TokenController struct {
	tokens    TokenService
	snapshots flow.SnapshotSource
}

func NewTokenController(t TokenService, s flow.SnapshotSource) *TokenController {
	return &TokenController{tokens: t, snapshots: s}
}

// Exchange handles POST /application/o/token/.
func (c *TokenController) Exchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("TokenController.Exchange"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		httperrors.WriteOAuthError(w, httperrors.ErrOAuthInvalidRequest.WithDetail("malformed form body"))
		return
	}
	f := r.PostForm

	if gt := f.Get("grant_type"); gt != "authorization_code" {
		httperrors.WriteOAuthError(w, httperrors.ErrOAuthUnsupportedGrantType)
		return
	}

	req := issuance.ExchangeRequest{
		Code:         strings.TrimSpace(f.Get("code")),
		ClientID:     strings.TrimSpace(f.Get("client_id")),
		ClientSecret: f.Get("client_secret"),
		RedirectURI:  strings.TrimSpace(f.Get("redirect_uri")),
	}
	// client_secret_basic tiene prioridad sobre client_secret_post
	if id, secret, ok := r.BasicAuth(); ok {
		if req.ClientID != "" && req.ClientID != id {
			httperrors.WriteOAuthError(w, httperrors.ErrOAuthInvalidRequest.WithDetail("client_id mismatch"))
			return
		}
		req.ClientID, req.ClientSecret = id, secret
	}
	if req.Code == "" || req.ClientID == "" {
		httperrors.WriteOAuthError(w, httperrors.ErrOAuthInvalidRequest.WithDetail("code and client_id are required"))
		return
	}

	snap, err := c.snapshots.Snapshot(ctx)
	if err != nil {
		log.Error("snapshot unavailable", logger.Err(err))
		httperrors.WriteOAuthError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	p, ok := snap.Provider(req.ClientID)
	if !ok {
		httperrors.WriteOAuthError(w, httperrors.ErrOAuthInvalidClient)
		return
	}

	resp, err := c.tokens.Exchange(ctx, p, req)
	switch {
	case err == nil:
	case errors.Is(err, issuance.ErrInvalidClient):
		httperrors.WriteOAuthError(w, httperrors.ErrOAuthInvalidClient)
		return
	case errors.Is(err, issuance.ErrInvalidGrant):
		httperrors.WriteOAuthError(w, httperrors.ErrOAuthInvalidGrant)
		return
	default:
		log.Error("exchange failed", logger.ClientID(req.ClientID), logger.Err(err))
		httperrors.WriteOAuthError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

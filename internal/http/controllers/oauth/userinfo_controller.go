package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	"github.com/dropDatabas3/consentgate/internal/issuance"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// UserInfoController maneja el endpoint /userinfo
type UserInfoController struct {
	tokens TokenService
}

func NewUserInfoController(t TokenService) *UserInfoController {
	return &UserInfoController{tokens: t}
}

// GetUserInfo maneja GET/POST /application/o/userinfo/. Devuelve el mapa
// materializado junto al ID token, sin re-evaluar mappings.
func (c *UserInfoController) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("UserInfoController.GetUserInfo"))

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	bearer := extractBearerToken(r)
	if bearer == "" {
		writeBearerError(w, "missing bearer token")
		return
	}

	info, err := c.tokens.UserInfo(ctx, bearer)
	if err != nil {
		if errors.Is(err, issuance.ErrInvalidToken) {
			log.Debug("userinfo rejected", logger.Err(err))
			writeBearerError(w, "token invalid or expired")
			return
		}
		log.Error("userinfo failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Add("Vary", "Authorization")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(info)
}

// ─── Helpers ───

func extractBearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < len("Bearer ") || !strings.EqualFold(ah[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[len("Bearer "):])
}

func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo", error="invalid_token", error_description="`+desc+`"`)
	httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail(desc))
}

package errors

import (
	"encoding/json"
	"net/http"
	"strings"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// oauthErrorResponse es el formato de /token (RFC 6749 §5.2).
type oauthErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError escribe el error como JSON con su status.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// WriteOAuthError escribe {error, error_description}. Los AppError que no son
// códigos OAuth se reportan como server_error.
func WriteOAuthError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	code := appErr.Code
	if strings.ToUpper(code) == code {
		code = "server_error"
	}
	desc := appErr.Detail
	if desc == "" {
		desc = appErr.Message
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	if appErr.HTTPStatus == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", `Basic realm="token"`)
	}
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(oauthErrorResponse{Error: code, Description: desc})
}

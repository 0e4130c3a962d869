package middlewares

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/consentgate/internal/http/errors"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// WithRecover captura panics y responde 500. En token y userinfo el cuerpo es
// un error OAuth (server_error) para que el cliente lo pueda parsear.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.From(r.Context()).Error("panic recovered",
					logger.Op("recover"),
					logger.RequestID(GetRequestID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.Any("panic", rec),
					zap.Stack("stack"),
				)
				appErr := errors.ErrInternalServerError.WithDetail("panic recovered")
				if isOAuthEndpoint(r.URL.Path) {
					errors.WriteOAuthError(w, appErr)
					return
				}
				errors.WriteError(w, appErr)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func isOAuthEndpoint(path string) bool {
	return strings.HasSuffix(path, "/token/") || strings.HasSuffix(path, "/userinfo/")
}

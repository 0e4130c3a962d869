// Package session maneja la cookie de sesión que consume authorize.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// Sessions abre y cierra sesiones.
type Sessions interface {
	Create(ctx context.Context, userID string, amr []string) (string, time.Time, error)
	Delete(ctx context.Context, sessionID string) error
}

type Deps struct {
	Sessions   Sessions
	Users      repository.UserRepository
	CookieName string
	// Secure marca la cookie como Secure (todo salvo dev).
	Secure bool
}

// SessionController: login de desarrollo y logout.
type SessionController struct {
	sessions   Sessions
	users      repository.UserRepository
	cookieName string
	secure     bool
}

func NewSessionController(d Deps) *SessionController {
	if d.CookieName == "" {
		d.CookieName = "sid"
	}
	return &SessionController{sessions: d.Sessions, users: d.Users, cookieName: d.CookieName, secure: d.Secure}
}

// DevLogin handles POST /application/o/session/dev-login/ (username, return_to).
// No verifica password: sólo se registra con app_env=dev, en producción la
// sesión la crea la UI de login externa sobre el mismo cache.
func (c *SessionController) DevLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionController.DevLogin"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	if username == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("username is required"))
		return
	}

	u, err := c.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("unknown user"))
			return
		}
		log.Error("user lookup failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	if !u.Active {
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("user is inactive"))
		return
	}

	sid, exp, err := c.sessions.Create(ctx, u.ID, []string{"pwd"})
	if err != nil {
		log.Error("session create failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    sid,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	log.Info("dev session opened", logger.UserID(u.ID))

	if rt := r.PostForm.Get("return_to"); isLocalPath(rt) {
		http.Redirect(w, r, rt, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /application/o/session/end/.
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	if ck, err := r.Cookie(c.cookieName); err == nil && ck.Value != "" {
		if err := c.sessions.Delete(ctx, ck.Value); err != nil {
			logger.From(ctx).Warn("session delete failed", logger.Op("SessionController.Logout"), logger.Err(err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// isLocalPath evita open redirects: sólo paths absolutos del mismo host.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

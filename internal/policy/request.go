package policy

import (
	"time"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
)

// Request es el contexto que recibe cada policy.
type Request struct {
	User         *repository.User
	Application  repository.Application
	ClientID     string
	ClientIP     string
	Scopes       []string
	RedirectURI  string
	ResponseType string
	Now          time.Time
}

func (r Request) applicationMap() map[string]any {
	return map[string]any{
		"slug":      r.Application.Slug,
		"name":      r.Application.Name,
		"client_id": r.ClientID,
	}
}

func (r Request) requestMap() map[string]any {
	scopes := make([]string, len(r.Scopes))
	copy(scopes, r.Scopes)
	return map[string]any{
		"scopes":        scopes,
		"client_ip":     r.ClientIP,
		"redirect_uri":  r.RedirectURI,
		"response_type": r.ResponseType,
	}
}

func (r Request) vars() expr.Vars {
	return expr.Vars{
		User:        expr.UserMap(r.User),
		Application: r.applicationMap(),
		Request:     r.requestMap(),
		Now:         r.Now,
	}
}

package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
)

// ErrMappingEvaluation: el mapping de un scope falló. El materializer lo
// recupera y el scope contribuye un set vacío.
var ErrMappingEvaluation = errors.New("claims: scope mapping evaluation failed")

// Mapping es un ScopeMapping con su expresión compilada.
type Mapping struct {
	repository.ScopeMapping
	prg *expr.Program
}

// Evaluate corre la expresión y devuelve los claims del scope.
func (m *Mapping) Evaluate(ctx context.Context, vars expr.Vars) (map[string]any, error) {
	if m == nil || m.prg == nil {
		return nil, fmt.Errorf("%w: mapping not compiled", ErrMappingEvaluation)
	}
	out, err := m.prg.EvalMap(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMappingEvaluation, m.Name, err)
	}
	return out, nil
}

// Mappings indexa los mappings compilados por nombre.
type Mappings map[string]*Mapping

// Compile compila un mapping. Una expresión inválida rechaza el snapshot entero.
func Compile(env *expr.Env, sm repository.ScopeMapping) (*Mapping, error) {
	if sm.Name == "" || sm.ScopeName == "" {
		return nil, fmt.Errorf("claims: scope mapping requires name and scope_name")
	}
	prg, err := env.Compile(sm.Expression)
	if err != nil {
		return nil, fmt.Errorf("claims: mapping %q: %w", sm.Name, err)
	}
	return &Mapping{ScopeMapping: sm, prg: prg}, nil
}

// CompileAll compila la lista completa; nombres duplicados son error.
func CompileAll(env *expr.Env, list []repository.ScopeMapping) (Mappings, error) {
	out := make(Mappings, len(list))
	for _, sm := range list {
		if _, dup := out[sm.Name]; dup {
			return nil, fmt.Errorf("claims: duplicate scope mapping %q", sm.Name)
		}
		m, err := Compile(env, sm)
		if err != nil {
			return nil, err
		}
		out[sm.Name] = m
	}
	return out, nil
}

// ForProvider devuelve, en el orden de PropertyMappings del provider, el
// mapping de cada scope. Si dos mappings apuntan al mismo scope gana el primero.
func (ms Mappings) ForProvider(p repository.Provider) []*Mapping {
	out := make([]*Mapping, 0, len(p.PropertyMappings))
	seen := map[string]bool{}
	for _, name := range p.PropertyMappings {
		m, ok := ms[name]
		if !ok || seen[m.ScopeName] {
			continue
		}
		seen[m.ScopeName] = true
		out = append(out, m)
	}
	return out
}

// Default mappings de los scopes OIDC estándar.
const (
	DefaultOpenID        = "default-openid"
	DefaultEmail         = "default-email"
	DefaultProfile       = "default-profile"
	DefaultOfflineAccess = "default-offline-access"
)

func DefaultMappings() []repository.ScopeMapping {
	return []repository.ScopeMapping{
		{
			Name:        DefaultOpenID,
			ScopeName:   "openid",
			Description: "",
			Expression:  `{}`,
		},
		{
			Name:        DefaultEmail,
			ScopeName:   "email",
			Description: "Email address",
			Expression:  `{"email": user.email, "email_verified": user.email_verified}`,
		},
		{
			Name:        DefaultProfile,
			ScopeName:   "profile",
			Description: "General Profile Information",
			Expression: `{
				"name": user.name,
				"given_name": user.name,
				"preferred_username": user.username,
				"nickname": user.username,
				"groups": user.groups
			}`,
		},
		{
			Name:        DefaultOfflineAccess,
			ScopeName:   "offline_access",
			Description: "Access to your data while you are not using the application",
			Expression:  `{}`,
		},
	}
}

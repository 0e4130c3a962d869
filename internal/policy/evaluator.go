package policy

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
)

// Evaluator es una policy compilada. Implementaciones deben respetar ctx:
// el engine corta por timeout, pero un evaluador bien portado no sigue trabajando.
type Evaluator interface {
	Policy() repository.Policy
	Evaluate(ctx context.Context, req Request) (Outcome, error)
}

// Evaluators resuelve el evaluador de un binding por nombre de policy.
type Evaluators interface {
	Lookup(policy string) (Evaluator, bool)
}

// Set es un Evaluators inmutable, indexado por nombre.
type Set map[string]Evaluator

func (s Set) Lookup(name string) (Evaluator, bool) {
	e, ok := s[name]
	return e, ok
}

// CompileDeps son los colaboradores que pueden necesitar las variantes.
type CompileDeps struct {
	Env    *expr.Env
	Scores ScoreSource
}

// Factory construye el evaluador de una variante.
type Factory func(p repository.Policy, d CompileDeps) (Evaluator, error)

var registry = map[repository.PolicyKind]Factory{
	repository.PolicyExpression:     newExpression,
	repository.PolicyAttributeMatch: newAttributeMatch,
	repository.PolicyReputation:     newReputation,
	repository.PolicyCedar:          newCedar,
	repository.PolicyDummy:          newDummy,
}

// Compile valida la policy y devuelve su evaluador.
func Compile(p repository.Policy, d CompileDeps) (Evaluator, error) {
	f, ok := registry[p.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (policy %q)", ErrUnknownKind, p.Kind, p.Name)
	}
	ev, err := f(p, d)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", p.Name, err)
	}
	return ev, nil
}

// CompileAll compila todas las policies a un Set.
func CompileAll(policies []repository.Policy, d CompileDeps) (Set, error) {
	out := make(Set, len(policies))
	for _, p := range policies {
		ev, err := Compile(p, d)
		if err != nil {
			return nil, err
		}
		out[p.Name] = ev
	}
	return out, nil
}

type base struct{ p repository.Policy }

func (b base) Policy() repository.Policy { return b.p }

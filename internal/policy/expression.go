package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
)

// expressionPolicy evalúa un programa CEL booleano.
type expressionPolicy struct {
	base
	prg *expr.Program
}

func newExpression(p repository.Policy, d CompileDeps) (Evaluator, error) {
	if strings.TrimSpace(p.Expression) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidPolicy)
	}
	if d.Env == nil {
		return nil, errors.New("policy: expression kind requires a CEL env")
	}
	prg, err := d.Env.Compile(p.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return &expressionPolicy{base: base{p}, prg: prg}, nil
}

func (e *expressionPolicy) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	ok, err := e.prg.EvalBool(ctx, req.vars())
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return fail("expression evaluated to false"), nil
	}
	return pass(), nil
}

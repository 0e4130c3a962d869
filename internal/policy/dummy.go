package policy

import (
	"context"
	"time"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// dummyPolicy devuelve un resultado fijo tras esperar Wait (respetando ctx).
type dummyPolicy struct {
	base
}

func newDummy(p repository.Policy, _ CompileDeps) (Evaluator, error) {
	return &dummyPolicy{base{p}}, nil
}

func (d *dummyPolicy) Evaluate(ctx context.Context, _ Request) (Outcome, error) {
	if w := d.p.Dummy.Wait; w > 0 {
		t := time.NewTimer(w)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	if d.p.Dummy.Result {
		return pass(), nil
	}
	return fail("dummy policy"), nil
}

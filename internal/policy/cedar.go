package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/cedar-policy/cedar-go"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
)

// Entidades cedar del request:
//
//	principal: User::"<id>"          attrs: username, email, groups, attributes, ...
//	action:    Action::"authorize"
//	resource:  Application::"<slug>" attrs: name, client_id
//	context:   scopes, client_ip, redirect_uri, response_type
type cedarPolicy struct {
	base
	ps *cedar.PolicySet
}

func newCedar(p repository.Policy, _ CompileDeps) (Evaluator, error) {
	if strings.TrimSpace(p.Cedar.Policies) == "" {
		return nil, fmt.Errorf("%w: empty cedar policy set", ErrInvalidPolicy)
	}
	ps, err := cedar.NewPolicySetFromBytes(p.Name+".cedar", []byte(p.Cedar.Policies))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return &cedarPolicy{base: base{p}, ps: ps}, nil
}

func (c *cedarPolicy) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	userID := ""
	if req.User != nil {
		userID = req.User.ID
	}
	principal := cedar.NewEntityUID("User", cedar.String(userID))
	resource := cedar.NewEntityUID("Application", cedar.String(req.Application.Slug))

	entities := cedar.EntityMap{
		principal: {
			UID:        principal,
			Parents:    cedar.NewEntityUIDSet(),
			Attributes: toCedarRecord(expr.UserMap(req.User)),
			Tags:       cedar.NewRecord(cedar.RecordMap{}),
		},
		resource: {
			UID:        resource,
			Parents:    cedar.NewEntityUIDSet(),
			Attributes: toCedarRecord(req.applicationMap()),
			Tags:       cedar.NewRecord(cedar.RecordMap{}),
		},
	}

	decision, diag := cedar.Authorize(c.ps, entities, cedar.Request{
		Principal: principal,
		Action:    cedar.NewEntityUID("Action", "authorize"),
		Resource:  resource,
		Context:   toCedarRecord(req.requestMap()),
	})
	if len(diag.Errors) > 0 {
		return Outcome{}, fmt.Errorf("cedar: %v", diag.Errors)
	}
	if decision != cedar.Allow {
		return fail("cedar policy set denied"), nil
	}
	return pass(), nil
}

func toCedarRecord(m map[string]any) cedar.Record {
	rm := make(cedar.RecordMap, len(m))
	for k, v := range m {
		if cv := toCedarValue(v); cv != nil {
			rm[cedar.String(k)] = cv
		}
	}
	return cedar.NewRecord(rm)
}

// toCedarValue convierte valores JSON-like; tipos no soportados se omiten.
func toCedarValue(v any) cedar.Value {
	switch t := v.(type) {
	case string:
		return cedar.String(t)
	case bool:
		if t {
			return cedar.True
		}
		return cedar.False
	case int:
		return cedar.Long(t)
	case int64:
		return cedar.Long(t)
	case float64:
		if t == float64(int64(t)) {
			return cedar.Long(int64(t))
		}
		return nil
	case []string:
		vals := make([]cedar.Value, 0, len(t))
		for _, s := range t {
			vals = append(vals, cedar.String(s))
		}
		return cedar.NewSet(vals...)
	case []any:
		vals := make([]cedar.Value, 0, len(t))
		for _, x := range t {
			if cv := toCedarValue(x); cv != nil {
				vals = append(vals, cv)
			}
		}
		return cedar.NewSet(vals...)
	case map[string]any:
		return toCedarRecord(t)
	default:
		return nil
	}
}

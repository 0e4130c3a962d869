package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
)

// attributeMatchPolicy compara un campo del usuario.
// Para valores lista (groups) alcanza con que un elemento matchee.
type attributeMatchPolicy struct {
	base
	s  repository.AttributeMatchSettings
	re *regexp.Regexp
}

func newAttributeMatch(p repository.Policy, _ CompileDeps) (Evaluator, error) {
	s := p.AttributeMatch
	if strings.TrimSpace(s.Key) == "" {
		return nil, fmt.Errorf("%w: attribute key required", ErrInvalidPolicy)
	}
	if s.Mode == "" {
		s.Mode = repository.AttributeExact
	}
	ap := &attributeMatchPolicy{base: base{p}, s: s}
	switch s.Mode {
	case repository.AttributeExact, repository.AttributeContains:
	case repository.AttributeRegex:
		re, err := regexp.Compile(s.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
		ap.re = re
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, s.Mode)
	}
	return ap, nil
}

func (a *attributeMatchPolicy) Evaluate(_ context.Context, req Request) (Outcome, error) {
	if req.User == nil {
		return fail("no authenticated user"), nil
	}
	v, ok := lookup(expr.UserMap(req.User), a.s.Key)
	if !ok {
		return fail(fmt.Sprintf("user has no attribute %q", a.s.Key)), nil
	}
	for _, candidate := range flatten(v) {
		if a.match(candidate) {
			return pass(), nil
		}
	}
	return fail(fmt.Sprintf("attribute %q does not match", a.s.Key)), nil
}

func (a *attributeMatchPolicy) match(v string) bool {
	switch a.s.Mode {
	case repository.AttributeRegex:
		return a.re.MatchString(v)
	case repository.AttributeContains:
		return strings.Contains(v, a.s.Value)
	default:
		return v == a.s.Value
	}
}

// lookup resuelve "email" o "attributes.department".
func lookup(m map[string]any, key string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(key, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func flatten(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}

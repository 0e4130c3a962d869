// Package expr compila y evalúa expresiones CEL (github.com/google/cel-go)
// sobre el contexto de un authorization request.
//
// Variables disponibles:
//
//	user        map<string, dyn>  usuario autenticado (id, username, email, groups, attributes, ...)
//	application map<string, dyn>  slug, name, client_id
//	request     map<string, dyn>  scopes, client_ip, redirect_uri, response_type
//	now         timestamp
//
// Los programas se compilan una vez al construir el snapshot de configuración
// y son seguros para uso concurrente.
package expr

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/traits"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrCompile = errors.New("expr: compile")
	ErrEval    = errors.New("expr: eval")
	// ErrResultType: la expresión evaluó a un tipo distinto al esperado.
	ErrResultType = errors.New("expr: unexpected result type")
)

// Vars es la activación de una evaluación.
type Vars struct {
	User        map[string]any
	Application map[string]any
	Request     map[string]any
	Now         time.Time
}

func (v Vars) activation() map[string]any {
	now := v.Now
	if now.IsZero() {
		now = time.Now()
	}
	return map[string]any{
		"user":        nonNil(v.User),
		"application": nonNil(v.Application),
		"request":     nonNil(v.Request),
		"now":         now,
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Env es el entorno CEL compartido.
type Env struct {
	env *cel.Env
}

// NewEnv declara las variables del contexto de autorización.
func NewEnv() (*Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("application", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("expr: new env: %w", err)
	}
	return &Env{env: env}, nil
}

// Program es una expresión compilada.
type Program struct {
	src string
	prg cel.Program
}

// Source devuelve el texto original.
func (p *Program) Source() string { return p.src }

// Compile parsea, chequea tipos y planifica la expresión.
func (e *Env) Compile(src string) (*Program, error) {
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, iss.Err())
	}
	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	return &Program{src: src, prg: prg}, nil
}

// EvalBool evalúa una expresión que debe producir bool.
func (p *Program) EvalBool(ctx context.Context, vars Vars) (bool, error) {
	out, _, err := p.prg.ContextEval(ctx, vars.activation())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEval, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("%w: want bool, got %s", ErrResultType, out.Type().TypeName())
	}
	return bool(b), nil
}

var structType = reflect.TypeOf(&structpb.Struct{})

// EvalMap evalúa una expresión que debe producir map<string, dyn>.
// El resultado usa tipos JSON-like: string, bool, float64, []any, map[string]any, nil.
func (p *Program) EvalMap(ctx context.Context, vars Vars) (map[string]any, error) {
	out, _, err := p.prg.ContextEval(ctx, vars.activation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEval, err)
	}
	if _, ok := out.(traits.Mapper); !ok {
		return nil, fmt.Errorf("%w: want map, got %s", ErrResultType, out.Type().TypeName())
	}
	native, err := out.ConvertToNative(structType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultType, err)
	}
	st, ok := native.(*structpb.Struct)
	if !ok {
		return nil, fmt.Errorf("%w: want map, got %T", ErrResultType, native)
	}
	return st.AsMap(), nil
}

package policy

import "errors"

// Result es el resultado de evaluar un binding.
type Result int

const (
	Passes Result = iota
	Fails
	Errors
)

func (r Result) String() string {
	switch r {
	case Passes:
		return "passes"
	case Fails:
		return "fails"
	default:
		return "errors"
	}
}

// Outcome es lo que devuelve un Evaluator.
type Outcome struct {
	Result   Result
	Messages []string
}

func pass() Outcome { return Outcome{Result: Passes} }

func fail(msg ...string) Outcome { return Outcome{Result: Fails, Messages: msg} }

var (
	// ErrTimeout: el binding no terminó dentro de su timeout.
	ErrTimeout = errors.New("policy: evaluation timed out")
	// ErrEvaluation: el evaluador devolvió error o hizo panic.
	ErrEvaluation = errors.New("policy: evaluation failed")
	// ErrUnknownPolicy: el binding referencia una policy que no existe en el snapshot.
	ErrUnknownPolicy = errors.New("policy: unknown policy")
	// ErrUnknownKind: no hay evaluador registrado para el kind.
	ErrUnknownKind = errors.New("policy: unknown kind")
	// ErrInvalidPolicy: la policy no compila / settings inválidos.
	ErrInvalidPolicy = errors.New("policy: invalid policy")
)

package policy

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/metrics"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// BindingResult es la traza de un binding evaluado.
type BindingResult struct {
	Binding  repository.PolicyBinding
	Result   Result
	Messages []string
	Err      error
	Elapsed  time.Duration
}

// Decision es el resultado agregado del engine.
type Decision struct {
	Allow bool
	// Reason sólo se completa en deny.
	Reason   string
	Messages []string
	Trace    []BindingResult
}

// Engine evalúa policy bindings con semántica deny-overrides.
type Engine struct {
	defaultTimeout time.Duration
}

type EngineDeps struct {
	// DefaultTimeout aplica a bindings sin timeout propio. Default 30s.
	DefaultTimeout time.Duration
}

func NewEngine(d EngineDeps) *Engine {
	if d.DefaultTimeout <= 0 {
		d.DefaultTimeout = 30 * time.Second
	}
	return &Engine{defaultTimeout: d.DefaultTimeout}
}

// Ordered devuelve los bindings habilitados por (Order, Seq) ascendente.
func Ordered(bindings []repository.PolicyBinding) []repository.PolicyBinding {
	out := make([]repository.PolicyBinding, 0, len(bindings))
	for _, b := range bindings {
		if b.Enabled {
			out = append(out, b)
		}
	}
	slices.SortStableFunc(out, func(a, b repository.PolicyBinding) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

// Evaluate corre los bindings en orden y corta en el primer deny.
//
//   - Sin bindings habilitados: ALLOW.
//   - FAILS: DENY.
//   - ERRORS (timeout, error, policy desconocida): DENY salvo FailOpen.
func (e *Engine) Evaluate(ctx context.Context, bindings []repository.PolicyBinding, evals Evaluators, req Request) Decision {
	log := logger.From(ctx).With(logger.Layer("engine"), logger.Op("PolicyEngine.Evaluate"))

	var dec Decision
	for _, b := range Ordered(bindings) {
		br := e.evaluateBinding(ctx, b, evals, req)
		dec.Trace = append(dec.Trace, br)

		switch br.Result {
		case Passes:
			continue
		case Fails:
			dec.Reason = denyReason(b.Policy, br.Messages)
			dec.Messages = br.Messages
			log.Info("binding failed", logger.Policy(b.Policy), logger.Strings("messages", br.Messages))
			return dec
		default:
			if b.FailOpen {
				log.Warn("binding errored, fail-open", logger.Policy(b.Policy), logger.Err(br.Err))
				continue
			}
			dec.Reason = fmt.Sprintf("policy %q could not be evaluated", b.Policy)
			dec.Messages = []string{br.Err.Error()}
			log.Warn("binding errored, fail-closed", logger.Policy(b.Policy), logger.Err(br.Err))
			return dec
		}
	}
	dec.Allow = true
	return dec
}

// denyReason usa el mensaje del binding; el genérico sólo si no dejó ninguno.
func denyReason(policy string, messages []string) string {
	msgs := slices.DeleteFunc(slices.Clone(messages), func(m string) bool { return strings.TrimSpace(m) == "" })
	if len(msgs) == 0 {
		return fmt.Sprintf("policy %q denied access", policy)
	}
	return strings.Join(msgs, "; ")
}

type evalResult struct {
	out Outcome
	err error
}

func (e *Engine) evaluateBinding(ctx context.Context, b repository.PolicyBinding, evals Evaluators, req Request) (br BindingResult) {
	br.Binding = b
	start := time.Now()

	kind := "unknown"
	defer func() {
		br.Elapsed = time.Since(start)
		metrics.PolicyEvaluations.WithLabelValues(kind, br.Result.String()).Inc()
		metrics.PolicyLatency.WithLabelValues(kind).Observe(br.Elapsed.Seconds())
	}()

	ev, ok := evals.Lookup(b.Policy)
	if !ok {
		br.Result, br.Err = Errors, fmt.Errorf("%w: %q", ErrUnknownPolicy, b.Policy)
		return br
	}
	p := ev.Policy()
	kind = string(p.Kind)

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("%w: panic: %v", ErrEvaluation, r)}
			}
		}()
		out, err := ev.Evaluate(cctx, req)
		ch <- evalResult{out: out, err: err}
	}()

	var res evalResult
	select {
	case res = <-ch:
	case <-cctx.Done():
		res.err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	switch {
	case res.err != nil:
		br.Result = Errors
		if errors.Is(res.err, context.DeadlineExceeded) {
			br.Err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		} else if errors.Is(res.err, ErrTimeout) || errors.Is(res.err, ErrEvaluation) {
			br.Err = res.err
		} else {
			br.Err = fmt.Errorf("%w: %v", ErrEvaluation, res.err)
		}
	case res.out.Result == Errors:
		br.Result, br.Err = Errors, fmt.Errorf("%w: %v", ErrEvaluation, res.out.Messages)
	default:
		br.Result, br.Messages = res.out.Result, res.out.Messages
		if b.Negate {
			if br.Result == Passes {
				br.Result = Fails
			} else {
				br.Result = Passes
			}
		}
	}

	if p.ExecutionLogging {
		logger.From(ctx).Info("policy executed",
			logger.Component("policy"),
			logger.Policy(p.Name),
			logger.String("kind", kind),
			logger.String("result", br.Result.String()),
			logger.Bool("negate", b.Negate),
		)
	}
	return br
}

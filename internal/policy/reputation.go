package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// reputationPolicy pasa si el score de cada identificador chequeado es >= Threshold.
// Los scores bajan con fallos de autenticación (ver ScoreSource.Adjust).
type reputationPolicy struct {
	base
	scores ScoreSource
}

func newReputation(p repository.Policy, d CompileDeps) (Evaluator, error) {
	if !p.Reputation.CheckIP && !p.Reputation.CheckUsername {
		return nil, fmt.Errorf("%w: reputation policy checks nothing", ErrInvalidPolicy)
	}
	if d.Scores == nil {
		return nil, errors.New("policy: reputation kind requires a score source")
	}
	return &reputationPolicy{base: base{p}, scores: d.Scores}, nil
}

func (r *reputationPolicy) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	s := r.p.Reputation
	if s.CheckIP {
		score, err := r.scores.Score(ctx, ScoreIP, req.ClientIP)
		if err != nil {
			return Outcome{}, err
		}
		if score < s.Threshold {
			return fail(fmt.Sprintf("ip reputation %d below threshold %d", score, s.Threshold)), nil
		}
	}
	if s.CheckUsername {
		username := ""
		if req.User != nil {
			username = req.User.Username
		}
		score, err := r.scores.Score(ctx, ScoreUsername, username)
		if err != nil {
			return Outcome{}, err
		}
		if score < s.Threshold {
			return fail(fmt.Sprintf("username reputation %d below threshold %d", score, s.Threshold)), nil
		}
	}
	return pass(), nil
}

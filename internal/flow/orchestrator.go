package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/consentgate/internal/audit"
	"github.com/dropDatabas3/consentgate/internal/claims"
	"github.com/dropDatabas3/consentgate/internal/consent"
	"github.com/dropDatabas3/consentgate/internal/controlplane"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/metrics"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
	"github.com/dropDatabas3/consentgate/internal/policy"
	"github.com/dropDatabas3/consentgate/internal/session"
)

// SnapshotSource entrega el snapshot de configuración vigente.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*controlplane.Snapshot, error)
}

// CodeIssuer guarda los claims materializados bajo un authorization code.
type CodeIssuer interface {
	IssueCode(ctx context.Context, p repository.Provider, app repository.Application, issuer, redirectURI string, c claims.Claims) (string, error)
}

type Orchestrator struct {
	snapshots  SnapshotSource
	auth       session.Authenticator
	users      repository.UserRepository
	engine     *policy.Engine
	consent    consent.Collaborator
	remembered *consent.Memory
	claims     *claims.Materializer
	codes      CodeIssuer
	scores     policy.ScoreSource
	audit      audit.Recorder
	baseURL    string
	consentTTL time.Duration
	now        func() time.Time
}

type OrchestratorDeps struct {
	Snapshots     SnapshotSource
	Authenticator session.Authenticator
	// Users recarga el usuario al reanudar desde consent.
	Users   repository.UserRepository
	Engine  *policy.Engine
	Consent consent.Collaborator
	// Remembered es opcional (nil = nunca recuerda).
	Remembered   *consent.Memory
	Materializer *claims.Materializer
	// Codes es opcional; sin él, CLAIMS_ISSUED no trae code.
	Codes CodeIssuer
	// Scores es opcional; se penaliza la IP en AUTHENTICATION_FAILED.
	Scores policy.ScoreSource
	// Audit es opcional (nil = audit.Nop).
	Audit      audit.Recorder
	BaseURL    string
	ConsentTTL time.Duration
	Now        func() time.Time
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Engine == nil {
		d.Engine = policy.NewEngine(policy.EngineDeps{})
	}
	if d.Materializer == nil {
		d.Materializer = claims.NewMaterializer()
	}
	if d.ConsentTTL <= 0 {
		d.ConsentTTL = 10 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	return &Orchestrator{
		snapshots:  d.Snapshots,
		auth:       d.Authenticator,
		users:      d.Users,
		engine:     d.Engine,
		consent:    d.Consent,
		remembered: d.Remembered,
		claims:     d.Materializer,
		codes:      d.Codes,
		scores:     d.Scores,
		audit:      d.Audit,
		baseURL:    d.BaseURL,
		consentTTL: d.ConsentTTL,
		now:        d.Now,
	}
}

// run es el estado mutable de UN request. Nunca se comparte entre requests.
type run struct {
	log  *zap.Logger
	snap *controlplane.Snapshot
	req  Request
	now  time.Time

	provider repository.Provider
	app      repository.Application
	flow     repository.Flow
	scopes   []string
	identity session.Identity

	res Result
}

func (r *run) enter(s State) {
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
}

// finish cierra el request en s: traza, métrica y log. Los estados de decisión además van al audit.
func (o *Orchestrator) finish(ctx context.Context, r *run, s State, reason string) Result {
	r.enter(s)
	if reason != "" {
		r.res.Reason = reason
	}
	metrics.AuthorizationOutcomes.WithLabelValues(string(s)).Inc()

	fields := []zap.Field{logger.State(string(s)), logger.ClientID(r.req.ClientID)}
	if r.app.Slug != "" {
		fields = append(fields, logger.AppSlug(r.app.Slug))
	}
	if r.identity.User != nil {
		fields = append(fields, logger.UserID(r.identity.User.ID))
	}
	if r.res.Reason != "" {
		fields = append(fields, logger.String("reason", r.res.Reason))
	}
	switch s {
	case StateClaimsIssued, StateConsentPending, StateLoginRequired:
		r.log.Info("authorization "+strings.ToLower(string(s)), fields...)
	default:
		r.log.Warn("authorization "+strings.ToLower(string(s)), fields...)
	}
	o.recordAudit(ctx, r, s)
	return r.res
}

var auditActions = map[State]audit.Action{
	StateClaimsIssued:         audit.ActionAuthorizeApplication,
	StateAccessDenied:         audit.ActionPolicyDenied,
	StateConsentDenied:        audit.ActionConsentDenied,
	StateAuthenticationFailed: audit.ActionLoginFailed,
}

func (o *Orchestrator) recordAudit(ctx context.Context, r *run, s State) {
	action, ok := auditActions[s]
	if !ok {
		return
	}
	e := audit.Event{
		Action:   action,
		ClientID: r.req.ClientID,
		AppSlug:  r.app.Slug,
		ClientIP: r.req.ClientIP,
		Scopes:   slices.Clone(r.scopes),
		Reason:   r.res.Reason,
		At:       r.now,
	}
	if r.identity.User != nil {
		e.UserID = r.identity.User.ID
	}
	o.audit.Record(ctx, e)
}

// Authorize corre un authorization request hasta un estado terminal o de suspensión.
// Los errores devueltos son de infraestructura; los rechazos van en Result.State.
func (o *Orchestrator) Authorize(ctx context.Context, req Request) (Result, error) {
	r := &run{
		log: logger.From(ctx).With(logger.Layer("service"), logger.Op("Orchestrator.Authorize")),
		req: req,
		now: o.now(),
	}
	r.res.ResponseState = req.State
	r.enter(StateStart)

	snap, err := o.snapshots.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("flow: configuration snapshot: %w", err)
	}
	r.snap = snap

	if res, done := o.resolveClient(ctx, r, req.ClientID); done {
		return res, nil
	}

	m, _ := snap.Matcher(r.provider.ClientID)
	if _, ok := m.Match(req.RedirectURI); !ok {
		return o.finish(ctx, r, StateRedirectError, "redirect_uri does not match any registered redirect uri"), nil
	}
	r.res.RedirectURI = req.RedirectURI
	r.enter(StateRedirectValidated)

	if req.ResponseType != ResponseTypeCode {
		return o.finish(ctx, r, StateRequestInvalid, fmt.Sprintf("unsupported response_type %q", req.ResponseType)), nil
	}
	r.scopes = grantableScopes(snap, r.provider, req.Scopes)

	return o.runStages(ctx, r)
}

// resolveClient carga provider, application y flow. done=true si el request terminó.
func (o *Orchestrator) resolveClient(ctx context.Context, r *run, clientID string) (Result, bool) {
	p, ok := r.snap.Provider(clientID)
	if !ok {
		return o.finish(ctx, r, StateRequestInvalid, "unknown client_id"), true
	}
	r.provider = p
	r.res.Provider = p

	app, ok := r.snap.ApplicationFor(clientID)
	if !ok {
		return o.finish(ctx, r, StateRequestInvalid, "provider is not published by any application"), true
	}
	r.app = app
	r.res.Application = app
	r.res.Issuer = claims.Issuer(o.baseURL, app.Slug)

	f, ok := r.snap.Flow(p.AuthorizationFlow)
	if !ok {
		return o.finish(ctx, r, StateRequestInvalid, "authorization flow not found"), true
	}
	r.flow = f
	return Result{}, false
}

// grantableScopes deduplica y descarta scopes sin mapping en el provider.
func grantableScopes(snap *controlplane.Snapshot, p repository.Provider, requested []string) []string {
	supported := snap.SupportedScopes(p)
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if slices.Contains(supported, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// stage es un paso del flow. Devuelve done=true si el request terminó o se suspendió.
type stage func(ctx context.Context, r *run) (res Result, done bool, err error)

// stagesFor traduce los descriptores del flow a stages ejecutables.
func (o *Orchestrator) stagesFor(f repository.Flow) ([]stage, error) {
	descs := f.Pipeline()
	out := make([]stage, 0, len(descs))
	for _, d := range descs {
		switch d.Kind {
		case repository.StageAuthentication:
			out = append(out, o.authenticate)
		case repository.StagePolicy:
			out = append(out, o.checkPolicies)
		case repository.StageConsent:
			out = append(out, o.decideConsent(d.Consent))
		default:
			return nil, fmt.Errorf("flow: %q: unknown stage kind %q", f.Slug, d.Kind)
		}
	}
	return out, nil
}

func (o *Orchestrator) runStages(ctx context.Context, r *run) (Result, error) {
	stages, err := o.stagesFor(r.flow)
	if err != nil {
		return Result{}, err
	}
	for _, st := range stages {
		res, done, err := st(ctx, r)
		if err != nil {
			return Result{}, err
		}
		if done {
			return res, nil
		}
	}
	return o.issue(ctx, r)
}

func (o *Orchestrator) authenticate(ctx context.Context, r *run) (Result, bool, error) {
	id, err := o.auth.Authenticate(ctx, r.req.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrLoginRequired):
		return o.finish(ctx, r, StateLoginRequired, ""), true, nil
	case errors.Is(err, session.ErrAborted):
		o.penalize(ctx, r)
		return o.finish(ctx, r, StateAuthenticationFailed, err.Error()), true, nil
	default:
		return Result{}, true, fmt.Errorf("flow: authenticate: %w", err)
	}
	if id.User == nil {
		o.penalize(ctx, r)
		return o.finish(ctx, r, StateAuthenticationFailed, fmt.Sprintf("%v: no user in session", session.ErrAborted)), true, nil
	}
	r.identity = id
	r.enter(StateAuthenticated)
	return Result{}, false, nil
}

func (o *Orchestrator) penalize(ctx context.Context, r *run) {
	if o.scores == nil || r.req.ClientIP == "" {
		return
	}
	if err := o.scores.Adjust(ctx, policy.ScoreIP, r.req.ClientIP, -1); err != nil {
		r.log.Warn("reputation update failed", logger.Err(err))
	}
}

func (o *Orchestrator) checkPolicies(ctx context.Context, r *run) (Result, bool, error) {
	dec := o.engine.Evaluate(ctx, r.app.PolicyBindings, r.snap.Policies, policy.Request{
		User:         r.identity.User,
		Application:  r.app,
		ClientID:     r.provider.ClientID,
		ClientIP:     r.req.ClientIP,
		Scopes:       slices.Clone(r.scopes),
		RedirectURI:  r.res.RedirectURI,
		ResponseType: r.req.ResponseType,
		Now:          r.now,
	})
	if !dec.Allow {
		r.res.Messages = dec.Messages
		return o.finish(ctx, r, StateAccessDenied, dec.Reason), true, nil
	}
	r.enter(StatePolicyChecked)
	return Result{}, false, nil
}

func (o *Orchestrator) decideConsent(settings repository.ConsentSettings) stage {
	return func(ctx context.Context, r *run) (Result, bool, error) {
		if !consent.RequiresConsent(settings, r.scopes) {
			r.enter(StateConsentDecided)
			return Result{}, false, nil
		}
		user := r.identity.User
		if o.remembered.Covered(ctx, settings, user.ID, r.app.Slug, r.scopes) {
			metrics.ConsentDecisions.WithLabelValues("remembered").Inc()
			r.enter(StateConsentDecided)
			return Result{}, false, nil
		}

		ttl := settings.TokenTTL
		if ttl <= 0 {
			ttl = o.consentTTL
		}
		ch, err := o.consent.Prompt(ctx, consent.Pending{
			UserID:       user.ID,
			AMR:          slices.Clone(r.identity.AMR),
			AuthTime:     r.identity.AuthTime,
			Application:  r.app.Slug,
			ClientID:     r.provider.ClientID,
			RedirectURI:  r.res.RedirectURI,
			ResponseType: r.req.ResponseType,
			State:        r.req.State,
			Nonce:        r.req.Nonce,
			Scopes:       slices.Clone(r.scopes),
			ClientIP:     r.req.ClientIP,
			ExpiresAt:    r.now.Add(ttl),
		})
		if err != nil {
			return Result{}, true, fmt.Errorf("flow: consent prompt: %w", err)
		}
		r.res.Consent = &ConsentPrompt{
			Token:     ch.Token,
			ExpiresAt: ch.ExpiresAt,
			Scopes:    r.snap.ScopeDescriptions(r.provider, r.scopes),
		}
		return o.finish(ctx, r, StateConsentPending, ""), true, nil
	}
}

// issue materializa claims y, si hay CodeIssuer, emite el authorization code.
func (o *Orchestrator) issue(ctx context.Context, r *run) (Result, error) {
	c, err := o.claims.BuildClaims(ctx, claims.Input{
		Provider:    r.provider,
		Application: r.app,
		Mappings:    r.snap.Mappings,
		User:        r.identity.User,
		Scopes:      r.scopes,
		AMR:         r.identity.AMR,
		AuthTime:    r.identity.AuthTime,
		Nonce:       r.req.Nonce,
		Issuer:      r.res.Issuer,
		ClientIP:    r.req.ClientIP,
		RedirectURI: r.res.RedirectURI,
		Now:         r.now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("flow: materialize claims: %w", err)
	}
	r.res.Claims = &c

	if o.codes != nil {
		code, err := o.codes.IssueCode(ctx, r.provider, r.app, r.res.Issuer, r.res.RedirectURI, c)
		if err != nil {
			return Result{}, fmt.Errorf("flow: issue code: %w", err)
		}
		r.res.Code = code
	}
	return o.finish(ctx, r, StateClaimsIssued, ""), nil
}

package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/consentgate/internal/consent"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/metrics"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
	"github.com/dropDatabas3/consentgate/internal/session"
)

// ResumeRequest es la respuesta de la UI de consent.
type ResumeRequest struct {
	Token    string
	Decision consent.Decision
	// Remember pide persistir la aprobación (si el stage lo permite).
	Remember bool
}

// Resume consume el continuation token y continúa desde CONSENT_PENDING.
// DENIED y EXPIRED (token vencido, reusado o desconocido) terminan en CONSENT_DENIED.
func (o *Orchestrator) Resume(ctx context.Context, in ResumeRequest) (Result, error) {
	r := &run{
		log: logger.From(ctx).With(logger.Layer("service"), logger.Op("Orchestrator.Resume")),
		now: o.now(),
	}
	r.enter(StateConsentPending)

	p, err := o.consent.Take(ctx, in.Token)
	if err != nil {
		if errors.Is(err, consent.ErrTokenExpired) {
			metrics.ConsentDecisions.WithLabelValues(string(consent.Expired)).Inc()
			return o.finish(ctx, r, StateConsentDenied, "consent request expired"), nil
		}
		return Result{}, fmt.Errorf("flow: take consent token: %w", err)
	}
	r.req = Request{
		ClientID:     p.ClientID,
		RedirectURI:  p.RedirectURI,
		ResponseType: p.ResponseType,
		Scopes:       p.Scopes,
		State:        p.State,
		Nonce:        p.Nonce,
		ClientIP:     p.ClientIP,
	}
	r.res.ResponseState = p.State

	// contexto reconstruido contra el snapshot actual
	snap, err := o.snapshots.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("flow: configuration snapshot: %w", err)
	}
	r.snap = snap
	if res, done := o.resolveClient(ctx, r, p.ClientID); done {
		return res, nil
	}
	if r.app.Slug != p.Application {
		return o.finish(ctx, r, StateRequestInvalid, "application changed while consent was pending"), nil
	}
	m, _ := snap.Matcher(r.provider.ClientID)
	if _, ok := m.Match(p.RedirectURI); !ok {
		return o.finish(ctx, r, StateRedirectError, "redirect_uri no longer registered"), nil
	}
	r.res.RedirectURI = p.RedirectURI
	r.scopes = grantableScopes(snap, r.provider, p.Scopes)

	switch in.Decision {
	case consent.Approved, consent.Denied, consent.Expired:
	default:
		in.Decision = consent.Denied
	}
	metrics.ConsentDecisions.WithLabelValues(string(in.Decision)).Inc()
	if !in.Decision.Granted() {
		return o.finish(ctx, r, StateConsentDenied, "consent "+string(in.Decision)), nil
	}

	u, err := o.users.GetByID(ctx, p.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return o.finish(ctx, r, StateAuthenticationFailed, "user no longer exists"), nil
		}
		return Result{}, fmt.Errorf("flow: load user: %w", err)
	}
	if !u.Active {
		return o.finish(ctx, r, StateAuthenticationFailed, session.ErrAborted.Error()), nil
	}
	r.identity = session.Identity{User: u, AMR: p.AMR, AuthTime: p.AuthTime}

	if in.Remember {
		settings := r.flow.ConsentStage()
		if err := o.remembered.Remember(ctx, settings, u.ID, r.app.Slug, r.scopes); err != nil {
			// no bloquea la autorización
			r.log.Warn("remember consent failed", logger.UserID(u.ID), logger.Err(err))
		}
	}
	r.enter(StateConsentDecided)
	return o.issue(ctx, r)
}

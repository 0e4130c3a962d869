// Package audit registra las decisiones de autorización que interesan a un
// operador: aplicaciones autorizadas y accesos rechazados.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

type Action string

const (
	ActionAuthorizeApplication Action = "authorize_application"
	ActionPolicyDenied         Action = "policy_denied"
	ActionConsentDenied        Action = "consent_denied"
	ActionLoginFailed          Action = "login_failed"
)

type Event struct {
	Action   Action
	ClientID string
	AppSlug  string
	UserID   string
	ClientIP string
	Scopes   []string
	Reason   string
	At       time.Time
}

// Recorder recibe eventos. Record nunca falla hacia el caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// LogRecorder escribe cada evento como una línea estructurada con logger "audit".
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	fields := []zap.Field{
		logger.String("action", string(e.Action)),
		logger.ClientID(e.ClientID),
		zap.Time("at", e.At.UTC()),
	}
	if e.AppSlug != "" {
		fields = append(fields, logger.AppSlug(e.AppSlug))
	}
	if e.UserID != "" {
		fields = append(fields, logger.UserID(e.UserID))
	}
	if e.ClientIP != "" {
		fields = append(fields, logger.ClientIP(e.ClientIP))
	}
	if len(e.Scopes) > 0 {
		fields = append(fields, logger.Strings("scopes", e.Scopes))
	}
	if e.Reason != "" {
		fields = append(fields, logger.String("reason", e.Reason))
	}
	logger.From(ctx).Named("audit").Info("audit event", fields...)
}

// Nop descarta los eventos.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

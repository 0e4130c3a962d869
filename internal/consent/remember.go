package consent

import (
	"context"
	"time"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// Memory recuerda consents aprobados sobre un ConsentRepository.
// Con repo nil nunca recuerda nada.
type Memory struct {
	repo repository.ConsentRepository
	now  func() time.Time
}

func NewMemory(repo repository.ConsentRepository, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{repo: repo, now: now}
}

// Covered indica si existe un consent recordado, vigente, que cubre todos los scopes.
// Nunca aplica en modo always_require. Un error del store se loguea y cuenta como "no cubierto".
func (m *Memory) Covered(ctx context.Context, s repository.ConsentSettings, userID, app string, scopes []string) bool {
	if m == nil || m.repo == nil || s.Mode == repository.ConsentAlwaysRequire {
		return false
	}
	c, err := m.repo.Get(ctx, userID, app)
	if err != nil {
		if !repository.IsNotFound(err) {
			logger.From(ctx).Warn("remembered consent lookup failed",
				logger.Op("consent.Covered"), logger.UserID(userID), logger.AppSlug(app), logger.Err(err))
		}
		return false
	}
	return c.Covers(scopes, m.now())
}

// Remember persiste la aprobación según el modo remember del stage.
func (m *Memory) Remember(ctx context.Context, s repository.ConsentSettings, userID, app string, scopes []string) error {
	if m == nil || m.repo == nil {
		return nil
	}
	now := m.now()
	c := repository.UserConsent{UserID: userID, Application: app, Scopes: scopes, CreatedAt: now}
	switch s.Remember {
	case repository.RememberPermanent:
	case repository.RememberExpiring:
		if s.RememberFor <= 0 {
			return nil
		}
		exp := now.Add(s.RememberFor)
		c.ExpiresAt = &exp
	default:
		return nil
	}
	return m.repo.Upsert(ctx, c)
}

// Package consent decide si un authorization request necesita consentimiento
// explícito, suspende el flujo con un continuation token de un solo uso y
// recuerda consents aprobados cuando el stage lo permite.
package consent

import (
	"slices"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

// OfflineAccessScope fuerza consentimiento en modo implied.
const OfflineAccessScope = "offline_access"

// Decision es la respuesta del usuario (o del sistema) al prompt.
type Decision string

const (
	Approved Decision = "approved"
	Denied   Decision = "denied"
	// Expired: el token venció, ya fue usado o nunca existió. Equivale a Denied.
	Expired Decision = "expired"
)

// Granted indica si la decisión permite continuar. Sólo Approved lo hace.
func (d Decision) Granted() bool { return d == Approved }

// RequiresConsent aplica el modo del stage:
//
//	always_require -> siempre
//	implied        -> sólo si se pide offline_access
//	none           -> nunca
//
// Un modo desconocido se trata como always_require.
func RequiresConsent(s repository.ConsentSettings, requested []string) bool {
	switch s.Mode {
	case repository.ConsentNone:
		return false
	case repository.ConsentImplied:
		return slices.Contains(requested, OfflineAccessScope)
	default:
		return true
	}
}

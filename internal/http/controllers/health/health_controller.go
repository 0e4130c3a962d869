// Package health contiene el controller para health checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	httperrors "github.com/dropDatabas3/consentgate/internal/http/errors"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// Check verifica un componente (cache, store, control plane).
type Check func(ctx context.Context) error

// Response es el cuerpo de /readyz.
type Response struct {
	Status     string            `json:"status"` // ready | unavailable
	Components map[string]string `json:"components"`
	Version    string            `json:"version,omitempty"`
}

// HealthController maneja las rutas de health check.
type HealthController struct {
	checks  map[string]Check
	version string
	timeout time.Duration
}

// NewHealthController crea el controller. version se expone en X-Service-Version.
func NewHealthController(checks map[string]Check, version string) *HealthController {
	return &HealthController{checks: checks, version: version, timeout: 2 * time.Second}
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := Response{Status: "ready", Components: make(map[string]string, len(names)), Version: c.version}
	for _, name := range names {
		if err := c.checks[name](cctx); err != nil {
			resp.Components[name] = "down"
			resp.Status = "unavailable"
			log.Warn("component not ready", logger.Component(name), logger.Err(err))
			continue
		}
		resp.Components[name] = "up"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

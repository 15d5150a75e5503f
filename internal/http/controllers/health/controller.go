// Package health expone liveness y readiness.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// Pinger es cualquier dependencia que sabe responder si está disponible.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapta una función a Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Controller struct {
	checks  map[string]Pinger
	timeout time.Duration
	version string
}

func NewController(version string, timeout time.Duration, checks map[string]Pinger) *Controller {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Controller{checks: checks, timeout: timeout, version: version}
}

// Healthz handles GET /healthz: el proceso responde.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": c.version})
}

// Readyz handles GET /readyz: todas las dependencias responden dentro del timeout.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := c.checks[name].Ping(ctx); err != nil {
			logger.From(ctx).Warn("readiness check failed", logger.Component(name), logger.Err(err))
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	overall := "ready"
	if status != http.StatusOK {
		overall = "not_ready"
	}
	helpers.WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
}

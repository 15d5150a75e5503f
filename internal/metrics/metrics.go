package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Los collectors viven en un paquete propio para que cache/rate/session/webhook
// puedan incrementarlos sin importar la capa HTTP.

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_total",
		Help: "Intentos de login por resultado",
	}, []string{"outcome"})

	ThrottleDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_throttle_degraded_total",
		Help: "Operaciones del throttle que fallaron abiertas por store caído",
	})

	SessionReuse = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_session_reuse_total",
		Help: "Reutilizaciones de refresh token detectadas (contención aplicada)",
	})

	CacheFallback = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_fallback_total",
		Help: "Operaciones servidas por el store en memoria por caída del store compartido",
	}, []string{"op"})

	OAuthCallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_callback_total",
		Help: "Callbacks OAuth por proveedor y resultado",
	}, []string{"provider", "outcome"})

	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Entregas de webhooks por proveedor y resultado",
	}, []string{"provider", "outcome"})
)

func all() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequests, HTTPDuration, LoginAttempts, ThrottleDegraded,
		SessionReuse, CacheFallback, OAuthCallbacks, WebhookDeliveries,
	}
}

// Register registra los collectors (default registry si reg es nil).
// Tolera registros repetidos.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range all() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Handler expone /metrics para el gatherer dado (default si nil).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

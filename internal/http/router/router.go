// Package router arma el árbol de rutas del servicio sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/trustgate/internal/auth"
	"github.com/dropDatabas3/trustgate/internal/cache"
	"github.com/dropDatabas3/trustgate/internal/http/handlers"
	mw "github.com/dropDatabas3/trustgate/internal/http/middlewares"
	"github.com/dropDatabas3/trustgate/internal/rate"
	"github.com/dropDatabas3/trustgate/internal/session"
)

// Deps contiene todo lo que el router necesita para armar las rutas.
type Deps struct {
	Verifier *auth.Verifier
	Sessions *session.Service
	Cache    cache.Client

	// AuthLimiter acota intentos fallidos en endpoints que presentan
	// credenciales. Opcional.
	AuthLimiter rate.Limiter

	// Registry para exponer /metrics. Si es nil se usa el default.
	Metrics *prometheus.Registry
}

// New construye el router completo.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares globales, del más externo al más interno.
	r.Use(mw.WithRecover())
	r.Use(mw.WithRequestID())
	r.Use(mw.WithSecurityHeaders())
	r.Use(mw.WithLogging())

	sessions := handlers.NewSessions(deps.Sessions)
	health := handlers.NewHealth(deps.Cache)

	r.Get("/healthz", health.Healthz)

	var metricsHandler http.Handler
	if deps.Metrics != nil {
		metricsHandler = promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.WithNoStore())

		// Emisión: credencial verificada + rate limit de intentos fallidos.
		r.Group(func(r chi.Router) {
			if deps.AuthLimiter != nil {
				r.Use(mw.WithRateLimit(mw.RateLimitConfig{
					Limiter: deps.AuthLimiter,
					KeyFunc: mw.IPPathRateKey,
				}))
			}
			r.Use(mw.RequireIdentity(deps.Verifier))
			r.Post("/sessions", sessions.Create)
		})

		// Operaciones sobre la sesión del caller.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireSession(deps.Sessions))
			r.Get("/sessions", sessions.List)
			r.Delete("/sessions/{id}", sessions.Revoke)
			r.Post("/sessions/revoke-all", sessions.RevokeAll)
		})

		// MFA: la sesión con MFA pendiente tiene que poder completar el paso.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireSessionAllowMFAPending(deps.Sessions))
			r.Post("/sessions/mfa/verify", sessions.VerifyMFA)
		})

		// Logout idempotente, sin guard de sesión.
		r.Post("/logout", sessions.Logout)
	})

	return r
}

// Package metrics define las métricas Prometheus del trust layer. Viven en un
// paquete standalone para evitar ciclos de import entre session/auth/breaker
// y las capas HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AuthDecisions decisiones del credential verifier por método y resultado.
	AuthDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_auth_decisions_total",
		Help: "Decisiones de autenticación por método (bearer/api_key/none) y outcome",
	}, []string{"method", "outcome"})

	// SessionOps operaciones de lifecycle de sesión.
	SessionOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_session_ops_total",
		Help: "Operaciones de sesión (create/destroy/revoke/revoke_all)",
	}, []string{"op"})

	// SessionHijackDetected sesiones destruidas por fingerprint mismatch.
	SessionHijackDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_session_hijack_detected_total",
		Help: "Sesiones destruidas por device fingerprint mismatch",
	})

	// BreakerState estado actual por circuito (0 closed, 1 open, 2 half-open).
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trustgate_breaker_state",
		Help: "Estado del circuit breaker (0=closed, 1=open, 2=half_open)",
	}, []string{"circuit"})

	// BreakerTransitions transiciones de estado por circuito y destino.
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_breaker_transitions_total",
		Help: "Transiciones de estado del circuit breaker",
	}, []string{"circuit", "to"})
)

// Register registra todas las métricas en el registry dado (o el default si
// es nil). Tolera AlreadyRegistered para poder llamarse desde tests.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		AuthDecisions,
		SessionOps,
		SessionHijackDetected,
		BreakerState,
		BreakerTransitions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

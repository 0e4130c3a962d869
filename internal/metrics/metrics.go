package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del pipeline de autorización. Viven en un paquete propio para que
// policy, claims y flow las usen sin depender del transporte HTTP.

var (
	AuthorizationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consentgate_authorization_outcomes_total",
		Help: "Resultados terminales del orquestador por estado",
	}, []string{"state"})

	PolicyEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consentgate_policy_evaluations_total",
		Help: "Evaluaciones de policy bindings por tipo y resultado",
	}, []string{"kind", "result"}) // result: passes|fails|errors

	PolicyLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consentgate_policy_evaluation_seconds",
		Help:    "Latencia de evaluación de un policy binding",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"kind"})

	MappingFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consentgate_scope_mapping_failures_total",
		Help: "Scope mappings que fallaron y contribuyeron un set vacío",
	}, []string{"scope"})

	ConsentDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consentgate_consent_decisions_total",
		Help: "Decisiones de consent recibidas",
	}, []string{"decision"}) // approved|denied|expired|remembered

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consentgate_http_requests_total",
		Help: "Requests HTTP procesadas",
	}, []string{"method", "route", "status"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		AuthorizationOutcomes,
		PolicyEvaluations,
		PolicyLatency,
		MappingFailures,
		ConsentDecisions,
		HTTPRequests,
	}
}

// Register registra las métricas en reg (o el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

package services

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ecoprenda",
			Name:      "transaction_transitions_total",
			Help:      "Transaction lifecycle transitions, by type, action and resulting status.",
		},
		[]string{"type", "action", "to"},
	)
	achievementsGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ecoprenda",
			Name:      "achievements_granted_total",
			Help:      "Achievements granted, by code.",
		},
		[]string{"code"},
	)
	collaboratorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ecoprenda",
			Name:      "collaborator_failures_total",
			Help:      "Failed calls to external collaborators that were degraded.",
		},
		[]string{"collaborator"},
	)
)

func init() {
	prometheus.MustRegister(transitionsTotal, achievementsGranted, collaboratorFailures)
}

// CollaboratorFailed counts a degraded call to an external collaborator
// (storage, classifier, geocoder).
func CollaboratorFailed(name string) {
	collaboratorFailures.WithLabelValues(name).Inc()
}

package syncrepo

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
)

var (
	operationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "sync",
		Name:      "operations_total",
		Help:      "Repository operations by collection, kind and final phase.",
	}, []string{"collection", "op", "phase"})

	failuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "sync",
		Name:      "failures_total",
		Help:      "Repository failures by collection and failure kind.",
	}, []string{"collection", "kind"})
)

func init() {
	prometheus.MustRegister(operationsCounter, failuresCounter)
}

func recordOutcome(collection, op string, phase Phase, kind domain.FailureKind) {
	operationsCounter.WithLabelValues(collection, op, string(phase)).Inc()
	if phase == PhaseRolledBack {
		failuresCounter.WithLabelValues(collection, string(kind)).Inc()
	}
}

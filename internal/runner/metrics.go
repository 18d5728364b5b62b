package runner

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeFlushed = "flushed"
	outcomeFailed  = "failed"
)

var (
	flushCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "runner",
		Name:      "flushes_total",
		Help:      "Daily steps flushes by outcome.",
	}, []string{"outcome"})

	sweptCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "runner",
		Name:      "reminders_missed_total",
		Help:      "Reminders transitioned to MISSED by the sweep.",
	})
)

func init() {
	prometheus.MustRegister(flushCounter, sweptCounter)
}

func recordFlush(outcome string) {
	flushCounter.WithLabelValues(outcome).Inc()
}

func recordSwept(n int) {
	sweptCounter.Add(float64(n))
}

package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events acknowledged by Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events the broker refused or did not acknowledge.",
	})

	invalidCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "outbox",
		Name:      "events_invalid_total",
		Help:      "Outbox events refused by their JSON schema.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "step_tracker",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one claim, deliver and settle cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events written to the dead-letter queue.",
	}, []string{"topic", "failure"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, invalidCounter, batchDuration, dlqCounter)
}

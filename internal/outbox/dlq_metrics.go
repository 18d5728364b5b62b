package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "dlq",
		Name:      "entries_requeued_total",
		Help:      "Dead letters moved back into the outbox for another delivery attempt.",
	}, []string{"topic", "event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "dlq",
		Name:      "entries_quarantined_total",
		Help:      "Dead letters set aside by the manager after exhausting replays or naming an unknown event type.",
	}, []string{"topic", "event_type"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "step_tracker",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Dead letters currently stored, by state.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqRequeuedCounter, dlqQuarantinedCounter, dlqBacklogGauge)
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var waiting, quarantined int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
            COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
        FROM outbox_dlq`).Scan(&waiting, &quarantined)
	if err != nil {
		return
	}
	dlqBacklogGauge.WithLabelValues("waiting").Set(float64(waiting))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}

package api

import "github.com/prometheus/client_golang/prometheus"

var (
	rateLimitedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests refused by the per-user rate limiter.",
	})
	workspacesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "step_tracker",
		Subsystem: "api",
		Name:      "workspaces",
		Help:      "Users with a loaded workspace.",
	})
	workspaceRefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "api",
		Name:      "workspace_refresh_failures_total",
		Help:      "Cached workspaces whose reload from the store failed.",
	})
	streamClientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "step_tracker",
		Subsystem: "api",
		Name:      "stream_clients",
		Help:      "Open state stream connections.",
	})
)

func init() {
	prometheus.MustRegister(rateLimitedCounter, workspacesGauge, workspaceRefreshFailures, streamClientsGauge)
}

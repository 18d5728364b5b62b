// Package observability holds process-wide watermark gauges.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stepsFlushGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "step_tracker",
		Subsystem: "runner",
		Name:      "last_flush_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful daily steps flush.",
	})
	stepsFlushedCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "step_tracker",
		Subsystem: "runner",
		Name:      "last_flush_step_count",
		Help:      "Step count carried by the most recent successful flush.",
	})
	remoteWriteGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "step_tracker",
		Subsystem: "persistence",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed write per collection.",
	}, []string{"collection"})
)

func init() {
	prometheus.MustRegister(stepsFlushGauge, stepsFlushedCount, remoteWriteGauge)
}

// RecordStepsFlushed updates the flush watermark gauges.
func RecordStepsFlushed(ts time.Time, count int) {
	if ts.IsZero() {
		return
	}
	stepsFlushGauge.Set(float64(ts.Unix()))
	stepsFlushedCount.Set(float64(count))
}

// RecordRemoteWrite updates the persistence watermark for collection.
func RecordRemoteWrite(collection string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	remoteWriteGauge.WithLabelValues(collection).Set(float64(ts.Unix()))
}

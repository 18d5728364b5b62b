package sensor

import "github.com/prometheus/client_golang/prometheus"

var (
	stepsDetectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "detector",
		Name:      "steps_detected_total",
		Help:      "Number of step events emitted to listeners.",
	})

	stepsSuppressedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "detector",
		Name:      "steps_suppressed_total",
		Help:      "Number of qualifying samples discarded as sensor settling after a registration.",
	})

	samplesDecodedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "sampler",
		Name:      "samples_decoded_total",
		Help:      "Number of motion samples decoded, labeled by sensor kind.",
	}, []string{"sensor"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "step_tracker",
		Subsystem: "sampler",
		Name:      "decode_errors_total",
		Help:      "Number of motion sample records that could not be decoded, per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(stepsDetectedCounter, stepsSuppressedCounter, samplesDecodedCounter, decodeErrorCounter)
}

func recordStep() {
	stepsDetectedCounter.Inc()
}

func recordSuppressed() {
	stepsSuppressedCounter.Inc()
}

func recordDecoded(sensor string) {
	samplesDecodedCounter.WithLabelValues(sensor).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

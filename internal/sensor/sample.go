// Package sensor turns raw accelerometer samples into debounced step events.
package sensor

import "context"

// SensorAccelerometer is the only sensor kind the detector accepts.
const SensorAccelerometer = "accelerometer"

// MotionSample is one tri-axis accelerometer reading.
type MotionSample struct {
	X              float64
	Y              float64
	Z              float64
	TimestampNanos int64
}

// StepEvent marks a detected step.
type StepEvent struct {
	TimestampNanos int64
}

// StepListener receives step events synchronously from the detector.
type StepListener interface {
	OnStep(StepEvent)
}

// StepListenerFunc adapts a function to StepListener.
type StepListenerFunc func(StepEvent)

// OnStep calls f(ev).
func (f StepListenerFunc) OnStep(ev StepEvent) { f(ev) }

// Sampler delivers motion samples until stopped. Cadence is decided by the device.
type Sampler interface {
	Start(ctx context.Context, deliver func(MotionSample)) error
	Stop() error
}

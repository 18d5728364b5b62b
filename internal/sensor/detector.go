package sensor

import (
	"math"
	"sync"
)

const (
	// StepThreshold is the minimum magnitude change between consecutive samples for a step.
	StepThreshold = 1.6
	// MinStepIntervalNanos debounces steps closer than 300ms.
	MinStepIntervalNanos int64 = 300_000_000
)

type registration struct {
	id       uint64
	listener StepListener
}

// Detector applies a magnitude-delta threshold filter with debounce. The first qualifying
// sample after each listener registration is discarded as sensor settling.
type Detector struct {
	mu                sync.Mutex
	lastStepTimestamp int64
	lastMagnitude     float64
	skippedFirstStep  bool
	nextID            uint64
	listeners         []registration
}

// NewDetector constructs a Detector with no listeners.
func NewDetector() *Detector {
	return &Detector{}
}

// RegisterListener appends l to the fan-out list and re-arms the first-step suppression.
// The returned func removes l; it is safe to call from inside OnStep.
func (d *Detector) RegisterListener(l StepListener) (unregister func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, registration{id: id, listener: l})
	d.skippedFirstStep = false

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

func (d *Detector) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := make([]registration, 0, len(d.listeners))
	for _, reg := range d.listeners {
		if reg.id != id {
			kept = append(kept, reg)
		}
	}
	d.listeners = kept
}

// ListenerCount returns the number of registered listeners.
func (d *Detector) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Process feeds one sample through the filter and reports whether a step was emitted.
func (d *Detector) Process(sample MotionSample) bool {
	magnitude := math.Sqrt(sample.X*sample.X + sample.Y*sample.Y + sample.Z*sample.Z)

	d.mu.Lock()
	delta := math.Abs(magnitude - d.lastMagnitude)
	d.lastMagnitude = magnitude

	if delta <= StepThreshold || sample.TimestampNanos-d.lastStepTimestamp <= MinStepIntervalNanos {
		d.mu.Unlock()
		return false
	}

	d.lastStepTimestamp = sample.TimestampNanos
	if !d.skippedFirstStep {
		d.skippedFirstStep = true
		d.mu.Unlock()
		recordSuppressed()
		return false
	}

	// listeners is only appended to or replaced, so the captured header is a stable snapshot
	targets := d.listeners
	d.mu.Unlock()

	event := StepEvent{TimestampNanos: sample.TimestampNanos}
	for _, reg := range targets {
		reg.listener.OnStep(event)
	}
	recordStep()
	return true
}

package sensor

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const second = int64(time.Second)

type recorder struct {
	name   string
	events []StepEvent
	log    *[]string
}

func (r *recorder) OnStep(ev StepEvent) {
	r.events = append(r.events, ev)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
}

func TestDetectorSuppressesFirstQualifyingSampleAfterRegistration(t *testing.T) {
	d := NewDetector()
	rec := &recorder{}
	d.RegisterListener(rec)

	require.False(t, d.Process(MotionSample{Z: 9.8, TimestampNanos: 1 * second}))
	require.Empty(t, rec.events)

	require.True(t, d.Process(MotionSample{Z: 12.0, TimestampNanos: 1*second + 500*int64(time.Millisecond)}))
	require.Len(t, rec.events, 1)
	require.Equal(t, 1*second+500*int64(time.Millisecond), rec.events[0].TimestampNanos)
}

func TestDetectorRequiresDeltaAboveThreshold(t *testing.T) {
	d := NewDetector()
	rec := &recorder{}
	d.RegisterListener(rec)
	d.Process(MotionSample{Z: 8, TimestampNanos: 1 * second})

	// interval long elapsed, but each change stays below the threshold
	require.False(t, d.Process(MotionSample{Z: 9.5, TimestampNanos: 3 * second}))
	require.False(t, d.Process(MotionSample{Z: 11, TimestampNanos: 5 * second}))
	require.Empty(t, rec.events)

	require.True(t, d.Process(MotionSample{Z: 8, TimestampNanos: 7 * second}))
	require.Len(t, rec.events, 1)
}

func TestDetectorDebouncesWithinMinInterval(t *testing.T) {
	d := NewDetector()
	rec := &recorder{}
	d.RegisterListener(rec)
	d.Process(MotionSample{Z: 9.8, TimestampNanos: 1 * second})

	ms := int64(time.Millisecond)
	require.True(t, d.Process(MotionSample{Z: 14, TimestampNanos: 1*second + 400*ms}))
	require.False(t, d.Process(MotionSample{Z: 9, TimestampNanos: 1*second + 600*ms}))
	// lastMagnitude tracked the debounced sample, so returning to 9 is no longer a jump
	require.False(t, d.Process(MotionSample{Z: 9, TimestampNanos: 2 * second}))
	require.True(t, d.Process(MotionSample{Z: 14, TimestampNanos: 3 * second}))
	require.Len(t, rec.events, 2)
}

func TestDetectorFansOutInRegistrationOrder(t *testing.T) {
	d := NewDetector()
	var order []string
	first := &recorder{name: "first", log: &order}
	second := &recorder{name: "second", log: &order}
	third := &recorder{name: "third", log: &order}
	d.RegisterListener(first)
	d.RegisterListener(second)
	d.RegisterListener(third)

	d.Process(MotionSample{Z: 9.8, TimestampNanos: 1 * time.Second.Nanoseconds()})
	d.Process(MotionSample{Z: 14, TimestampNanos: 2 * time.Second.Nanoseconds()})

	require.Equal(t, []string{"first", "second", "third"}, order)
}

// Re-registering while running opens a new suppression window. This mirrors the mobile app
// and is kept as a known limitation.
func TestDetectorReRegistrationRearmsSuppression(t *testing.T) {
	d := NewDetector()
	rec := &recorder{}
	d.RegisterListener(rec)
	d.Process(MotionSample{Z: 9.8, TimestampNanos: 1 * second})
	require.True(t, d.Process(MotionSample{Z: 14, TimestampNanos: 2 * second}))

	late := &recorder{}
	d.RegisterListener(late)
	require.False(t, d.Process(MotionSample{Z: 9.8, TimestampNanos: 3 * second}))
	require.True(t, d.Process(MotionSample{Z: 14, TimestampNanos: 4 * second}))

	require.Len(t, rec.events, 2)
	require.Len(t, late.events, 1)
}

func TestDetectorUnregisterDuringEmit(t *testing.T) {
	d := NewDetector()
	after := &recorder{}
	var selfCalls int
	var unregister func()
	unregister = d.RegisterListener(StepListenerFunc(func(StepEvent) {
		selfCalls++
		unregister()
	}))
	d.RegisterListener(after)

	d.Process(MotionSample{Z: 9.8, TimestampNanos: 1 * second})
	require.NotPanics(t, func() {
		d.Process(MotionSample{Z: 14, TimestampNanos: 2 * second})
	})
	require.Equal(t, 1, selfCalls)
	require.Len(t, after.events, 1)
	require.Equal(t, 1, d.ListenerCount())

	d.Process(MotionSample{Z: 9.8, TimestampNanos: 3 * second})
	require.Equal(t, 1, selfCalls)
	require.Len(t, after.events, 2)

	require.NotPanics(t, unregister)
}

func TestDetectorEmitsNoMoreThanQualifyingDeltas(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	d := NewDetector()
	rec := &recorder{}
	d.RegisterListener(rec)

	var ts int64
	var last float64
	qualifying := 0
	for i := 0; i < 5000; i++ {
		ts += int64(rng.Intn(200)+20) * int64(time.Millisecond)
		sample := MotionSample{
			X:              rng.Float64()*4 - 2,
			Y:              rng.Float64()*4 - 2,
			Z:              9.8 + rng.NormFloat64()*2,
			TimestampNanos: ts,
		}
		mag := math.Sqrt(sample.X*sample.X + sample.Y*sample.Y + sample.Z*sample.Z)
		if math.Abs(mag-last) > StepThreshold {
			qualifying++
		}
		last = mag
		d.Process(sample)
	}

	require.NotZero(t, len(rec.events))
	require.LessOrEqual(t, len(rec.events), qualifying)
	for i := 1; i < len(rec.events); i++ {
		require.Greater(t, rec.events[i].TimestampNanos-rec.events[i-1].TimestampNanos, MinStepIntervalNanos)
	}
}

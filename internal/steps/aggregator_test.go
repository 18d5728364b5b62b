package steps

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/sensor"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestAggregator(t *testing.T, now time.Time) (*Aggregator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: now}
	return NewAggregator(WithClock(clock.Now), WithLocation(time.UTC)), clock
}

func TestAggregatorCountsTodayOnly(t *testing.T) {
	agg, clock := newTestAggregator(t, time.Date(2024, time.March, 6, 23, 59, 0, 0, time.UTC))
	require.Equal(t, 0, agg.TodaySteps())

	for i := 0; i < 3; i++ {
		agg.OnStep(sensor.StepEvent{})
	}
	require.Equal(t, 3, agg.TodaySteps())

	clock.Set(time.Date(2024, time.March, 7, 0, 1, 0, 0, time.UTC))
	require.Equal(t, 0, agg.TodaySteps())
	agg.OnStep(sensor.StepEvent{})
	require.Equal(t, 1, agg.TodaySteps())
	require.Equal(t, 3, agg.StepsOn("2024-03-06"))
}

func TestAggregatorWeeklyStepsMondayStart(t *testing.T) {
	// 2024-03-04 is a Monday
	agg, _ := newTestAggregator(t, time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC))
	for i, count := range []int{100, 200, 300, 400, 500, 600, 700} {
		agg.Seed(time.Date(2024, time.March, 4+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), count)
	}

	require.Equal(t, [7]int{100, 200, 300, 400, 500, 600, 700}, agg.WeeklySteps())
}

func TestAggregatorWeeklyStepsSundayClosesWeek(t *testing.T) {
	agg, _ := newTestAggregator(t, time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC))
	agg.Seed("2024-03-03", 999) // previous Sunday
	agg.Seed("2024-03-04", 10)
	agg.Seed("2024-03-10", 70)
	agg.Seed("2024-03-11", 5) // next Monday

	require.Equal(t, [7]int{10, 0, 0, 0, 0, 0, 70}, agg.WeeklySteps())
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 7; offset++ {
		day := monday.AddDate(0, 0, offset).Add(15 * time.Hour)
		require.Equal(t, monday, WeekStart(day), day.Weekday().String())
	}
}

func TestAggregatorSeedNeverLowersLiveCount(t *testing.T) {
	agg, _ := newTestAggregator(t, time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC))
	agg.Seed("2024-03-06", 40)
	require.Equal(t, 40, agg.TodaySteps())

	agg.OnStep(sensor.StepEvent{})
	agg.Seed("2024-03-06", 10)
	require.Equal(t, 41, agg.TodaySteps())
}

func TestAggregatorGoalProgress(t *testing.T) {
	agg, _ := newTestAggregator(t, time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC))
	require.Zero(t, agg.GoalProgress(0))
	agg.Seed("2024-03-06", 2500)
	require.InDelta(t, 0.25, agg.GoalProgress(10000), 1e-9)
	require.Equal(t, 1.0, agg.GoalProgress(1000))
}

func TestAggregatorDropsHistoryBeyondRetention(t *testing.T) {
	agg, _ := newTestAggregator(t, time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC))
	agg.Seed("2024-03-01", 50)
	agg.OnStep(sensor.StepEvent{})
	require.Zero(t, agg.StepsOn("2024-03-01"))
	require.Equal(t, 1, agg.TodaySteps())
}

func TestAggregatorConcurrentReadersSeeWholeCounts(t *testing.T) {
	agg, _ := newTestAggregator(t, time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC))

	const total = 2000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			agg.OnStep(sensor.StepEvent{TimestampNanos: int64(i)})
		}
	}()

	last := 0
	for {
		select {
		case <-done:
			require.Equal(t, total, agg.TodaySteps())
			return
		default:
			current := agg.TodaySteps()
			require.GreaterOrEqual(t, current, last)
			last = current
			_ = agg.WeeklySteps()
		}
	}
}

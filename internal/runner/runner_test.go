package runner

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/sensor"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/steps"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/syncrepo"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	runner     *Runner
	samples    chan sensor.MotionSample
	store      *remote.MemoryStepStore
	aggregator *steps.Aggregator
	detector   *sensor.Detector
	clock      *clock
	nextTs     int64
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clk := &clock{now: time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)}
	samples := make(chan sensor.MotionSample)
	store := remote.NewMemoryStepStore()
	agg := steps.NewAggregator(steps.WithClock(clk.Now), steps.WithLocation(time.UTC))
	detector := sensor.NewDetector()
	repo := syncrepo.NewDailyStepsRepository(store, syncrepo.WithLogger(log.New(io.Discard, "", 0)))

	base := []Option{
		WithLogger(log.New(testWriter{t}, "[runner] ", 0)),
		WithClock(clk.Now),
		WithFlushInterval(time.Hour),
	}
	r := New("u1", sensor.NewChannelSampler(samples), detector, agg, repo, append(base, opts...)...)
	return &harness{runner: r, samples: samples, store: store, aggregator: agg, detector: detector, clock: clk}
}

// walk pushes alternating magnitudes one second apart. The first qualifying sample after
// registration is suppressed by the detector, so n+1 samples yield n steps.
func (h *harness) walk(n int) {
	for i := 0; i <= n; i++ {
		h.nextTs += int64(time.Second)
		z := 10.0
		if i%2 == 1 {
			z = 0
		}
		h.samples <- sensor.MotionSample{Z: z, TimestampNanos: h.nextTs}
	}
}

func (h *harness) stepsEventually(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.aggregator.TodaySteps() == want }, time.Second, time.Millisecond)
}

func TestRunnerFlushesOnTeardown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background()))
	require.Equal(t, 1, h.detector.ListenerCount())

	h.walk(3)
	h.stepsEventually(t, 3)
	h.runner.Stop()

	records, err := h.store.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "2025-03-12", records[0].Date)
	require.Equal(t, 3, records[0].StepCount)
	require.Zero(t, h.detector.ListenerCount())
}

func TestRunnerHydratesFromPersistedRecords(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.UpsertByKey(context.Background(), "u1", "2025-03-12", 500)
	require.NoError(t, err)

	require.NoError(t, h.runner.Start(context.Background()))
	require.Equal(t, 500, h.aggregator.TodaySteps())

	h.walk(2)
	h.stepsEventually(t, 502)
	h.runner.Stop()

	require.Equal(t, 1, h.store.CountKey("u1", "2025-03-12"))
	records, err := h.store.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 502, records[0].StepCount)
}

func TestRunnerFlushesPeriodically(t *testing.T) {
	h := newHarness(t, WithFlushInterval(5*time.Millisecond))
	require.NoError(t, h.runner.Start(context.Background()))
	defer h.runner.Stop()

	h.walk(2)
	require.Eventually(t, func() bool {
		records, err := h.store.FetchAll(context.Background(), "u1")
		return err == nil && len(records) == 1 && records[0].StepCount == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerSkipsDaysWithoutSteps(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background()))
	h.runner.Stop()
	require.Zero(t, h.store.Len())
}

func TestRunnerCarriesPreviousDayAcrossMidnight(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background()))

	h.walk(3)
	h.stepsEventually(t, 3)
	h.clock.Set(time.Date(2025, time.March, 13, 0, 5, 0, 0, time.UTC))
	h.runner.Stop()

	require.Equal(t, 1, h.store.CountKey("u1", "2025-03-12"))
	require.Zero(t, h.store.CountKey("u1", "2025-03-13"))
	require.Equal(t, 3, h.aggregator.StepsOn("2025-03-12"))
}

func TestRunnerRejectsSecondStart(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background()))
	require.ErrorIs(t, h.runner.Start(context.Background()), ErrAlreadyStarted)
	h.runner.Stop()
}

func TestRunnerWaitAndStopWithoutStart(t *testing.T) {
	h := newHarness(t)
	returned := make(chan struct{})
	go func() {
		h.runner.Wait()
		h.runner.Stop()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on a runner that was never started")
	}
	require.Zero(t, h.store.Len())
}

func TestRunnerStopsWhenContextCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.runner.Start(ctx))
	h.walk(1)
	h.stepsEventually(t, 1)

	cancel()
	h.runner.Wait()
	require.Equal(t, 1, h.store.CountKey("u1", "2025-03-12"))
}

func TestRunnerSweepsOverdueReminders(t *testing.T) {
	reminders := syncrepo.NewReminderRepository(remote.NewMemoryReminderStore(), syncrepo.WithLogger(log.New(io.Discard, "", 0)))
	h := newHarness(t, WithFlushInterval(5*time.Millisecond), WithReminderSweep(reminders))

	overdue, err := reminders.Create(context.Background(), domain.Reminder{
		UserID:   "u1",
		Title:    "Take vitamins",
		DateTime: h.clock.Now().Add(-time.Hour),
		Status:   domain.ReminderPending,
		Type:     domain.ReminderMedicine,
	})
	require.NoError(t, err)

	require.NoError(t, h.runner.Start(context.Background()))
	defer h.runner.Stop()

	require.Eventually(t, func() bool {
		current, ok := reminders.Find(overdue.ID)
		return ok && current.Status == domain.ReminderMissed
	}, time.Second, 5*time.Millisecond)
}

type failingSampler struct{}

func (failingSampler) Start(context.Context, func(sensor.MotionSample)) error {
	return errors.New("sensor unavailable")
}

func (failingSampler) Stop() error { return nil }

func TestRunnerStartFailureUnregistersListener(t *testing.T) {
	detector := sensor.NewDetector()
	repo := syncrepo.NewDailyStepsRepository(remote.NewMemoryStepStore(), syncrepo.WithLogger(log.New(io.Discard, "", 0)))
	r := New("u1", failingSampler{}, detector, steps.NewAggregator(), repo, WithLogger(log.New(io.Discard, "", 0)))

	require.Error(t, r.Start(context.Background()))
	require.Zero(t, detector.ListenerCount())
	r.Wait()
}

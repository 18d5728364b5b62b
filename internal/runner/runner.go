// Package runner keeps step tracking alive for the lifetime of the process and periodically
// persists the daily count.
package runner

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/observability"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/sensor"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/steps"
)

const (
	// DefaultFlushInterval is how often today's count is persisted while running.
	DefaultFlushInterval   = 30 * time.Second
	defaultTeardownTimeout = 10 * time.Second
)

// ErrAlreadyStarted is returned when Start is called on a running Runner.
var ErrAlreadyStarted = errors.New("runner already started")

// DailySteps is the persistence surface the runner flushes into.
type DailySteps interface {
	Load(ctx context.Context, userID string) error
	Items() []domain.DailyStepRecord
	Upsert(ctx context.Context, userID, date string, count int) (domain.DailyStepRecord, error)
}

// ReminderSweeper marks overdue reminders as missed.
type ReminderSweeper interface {
	MarkMissed(ctx context.Context, now time.Time) (int, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the runner logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithFlushInterval overrides DefaultFlushInterval.
func WithFlushInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// WithTeardownTimeout bounds the final flush issued after the run context is cancelled.
func WithTeardownTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.teardownTimeout = d
		}
	}
}

// WithReminderSweep marks overdue reminders as missed on every tick.
func WithReminderSweep(sweeper ReminderSweeper) Option {
	return func(r *Runner) {
		r.sweeper = sweeper
	}
}

// WithClock overrides the clock used for reminder sweeps and flush watermarks.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner owns one step tracking session: sampler, detector and aggregator are wired
// together on Start and torn down when the context passed to Start is cancelled.
// Construct one per process and hand it to whatever needs to query or stop it.
type Runner struct {
	userID     string
	sampler    sensor.Sampler
	detector   *sensor.Detector
	aggregator *steps.Aggregator
	daily      DailySteps
	sweeper    ReminderSweeper

	flushInterval   time.Duration
	teardownTimeout time.Duration
	now             func() time.Time
	logger          *log.Logger

	mu           sync.Mutex
	started      bool
	cancel       context.CancelFunc
	flushedDate  string
	flushedCount int
	done         chan struct{}
}

// New constructs a Runner tracking steps for userID.
func New(userID string, sampler sensor.Sampler, detector *sensor.Detector, aggregator *steps.Aggregator, daily DailySteps, opts ...Option) *Runner {
	r := &Runner{
		userID:          userID,
		sampler:         sampler,
		detector:        detector,
		aggregator:      aggregator,
		daily:           daily,
		flushInterval:   DefaultFlushInterval,
		teardownTimeout: defaultTeardownTimeout,
		now:             time.Now,
		logger:          log.New(log.Writer(), "[runner] ", log.LstdFlags|log.Lshortfile),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Aggregator exposes the live counter for readers.
func (r *Runner) Aggregator() *steps.Aggregator {
	return r.aggregator
}

// Start hydrates the counter from persisted records, registers it with the detector and
// starts the sampler. The flush loop runs until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	r.hydrate(runCtx)
	today := r.aggregator.Today()
	r.markFlushed(today, r.aggregator.StepsOn(today))

	unregister := r.detector.RegisterListener(r.aggregator)
	if err := r.sampler.Start(runCtx, func(sample sensor.MotionSample) {
		r.detector.Process(sample)
	}); err != nil {
		unregister()
		cancel()
		close(r.done)
		return err
	}

	go r.loop(runCtx, unregister)
	return nil
}

// Stop cancels the session and waits for the teardown flush.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.Wait()
}

// Wait blocks until the runner has torn down. It returns at once when Start was never
// called.
func (r *Runner) Wait() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}
	<-r.done
}

func (r *Runner) hydrate(ctx context.Context) {
	if err := r.daily.Load(ctx, r.userID); err != nil {
		r.logger.Printf("hydrate daily steps: %v", err)
		return
	}
	for _, rec := range r.daily.Items() {
		if rec.UserID == r.userID {
			r.aggregator.Seed(rec.Date, rec.StepCount)
		}
	}
}

func (r *Runner) markFlushed(date string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushedDate = date
	r.flushedCount = count
}

func (r *Runner) loop(ctx context.Context, unregister func()) {
	ticker := time.NewTicker(r.flushInterval)
	defer func() {
		ticker.Stop()
		close(r.done)
	}()

	for {
		select {
		case <-ctx.Done():
			r.teardown(unregister)
			return
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Printf("flush failed: %v", err)
			}
			r.sweep(ctx)
		}
	}
}

func (r *Runner) teardown(unregister func()) {
	if err := r.sampler.Stop(); err != nil {
		r.logger.Printf("stop sampler: %v", err)
	}
	unregister()

	ctx, cancel := context.WithTimeout(context.Background(), r.teardownTimeout)
	defer cancel()
	if err := r.Flush(ctx); err != nil {
		r.logger.Printf("teardown flush failed: %v", err)
	}
}

// Flush persists today's count. If the day rolled over since the last flush, the final
// count of the previous day is persisted first and the watermark only moves to today once
// that succeeded. Days without steps are not written.
func (r *Runner) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	today := r.aggregator.Today()
	carried := true
	if r.flushedDate != "" && r.flushedDate != today {
		if count := r.aggregator.StepsOn(r.flushedDate); count > r.flushedCount {
			if err := r.upsert(ctx, r.flushedDate, count); err != nil {
				errs = errors.Join(errs, err)
				carried = false
			}
		}
	}

	count := r.aggregator.TodaySteps()
	if count > 0 {
		if err := r.upsert(ctx, today, count); err != nil {
			return errors.Join(errs, err)
		}
	}
	if carried {
		r.flushedDate = today
		r.flushedCount = count
	}
	return errs
}

func (r *Runner) upsert(ctx context.Context, date string, count int) error {
	rec, err := r.daily.Upsert(ctx, r.userID, date, count)
	if err != nil {
		recordFlush(outcomeFailed)
		return err
	}
	recordFlush(outcomeFlushed)
	observability.RecordStepsFlushed(r.now(), rec.StepCount)
	return nil
}

func (r *Runner) sweep(ctx context.Context) {
	if r.sweeper == nil {
		return
	}
	marked, err := r.sweeper.MarkMissed(ctx, r.now())
	if marked > 0 {
		recordSwept(marked)
		r.logger.Printf("marked %d reminders missed", marked)
	}
	if err != nil {
		r.logger.Printf("reminder sweep: %v", err)
	}
}

// Package steps accumulates detected steps into per-day counters.
package steps

import (
	"sync/atomic"
	"time"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/sensor"
)

const defaultRetentionDays = 14

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the wall clock used to pick "today".
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithRetentionDays bounds how many days of history are kept in memory.
func WithRetentionDays(days int) Option {
	return func(a *Aggregator) {
		if days >= 7 {
			a.retentionDays = days
		}
	}
}

type dayCounts map[string]int

// Aggregator keeps step counts keyed by local calendar day. Counts are published as an
// immutable map behind an atomic pointer: the sampler goroutine swaps in a new map per step
// and readers never observe a partially written one.
type Aggregator struct {
	now           func() time.Time
	loc           *time.Location
	retentionDays int
	days          atomic.Pointer[dayCounts]
}

var _ sensor.StepListener = (*Aggregator)(nil)

// NewAggregator constructs an empty Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:           time.Now,
		loc:           time.Local,
		retentionDays: defaultRetentionDays,
	}
	for _, opt := range opts {
		opt(a)
	}
	empty := dayCounts{}
	a.days.Store(&empty)
	return a
}

// OnStep counts one step for today. Events are not deduplicated.
func (a *Aggregator) OnStep(sensor.StepEvent) {
	today := a.Today()
	a.update(func(next dayCounts) {
		next[today]++
	})
}

// Seed raises the count stored for date to at least count. It is used to hydrate the
// counter from persisted records without ever lowering a live value.
func (a *Aggregator) Seed(date string, count int) {
	a.update(func(next dayCounts) {
		if count > next[date] {
			next[date] = count
		}
	})
}

func (a *Aggregator) update(mutate func(dayCounts)) {
	cutoff := domain.DateOf(a.now().AddDate(0, 0, -(a.retentionDays - 1)), a.loc)
	for {
		current := a.days.Load()
		next := make(dayCounts, len(*current)+1)
		for day, count := range *current {
			if day >= cutoff {
				next[day] = count
			}
		}
		mutate(next)
		if a.days.CompareAndSwap(current, &next) {
			return
		}
	}
}

// Today returns the current local calendar day.
func (a *Aggregator) Today() string {
	return domain.DateOf(a.now(), a.loc)
}

// StepsOn returns the count for date, or 0.
func (a *Aggregator) StepsOn(date string) int {
	return (*a.days.Load())[date]
}

// TodaySteps returns today's count, or 0 when no step was seen yet.
func (a *Aggregator) TodaySteps() int {
	return a.StepsOn(a.Today())
}

// GoalProgress returns today's count as a fraction of goal, clamped to [0, 1].
func (a *Aggregator) GoalProgress(goal int) float64 {
	if goal <= 0 {
		return 0
	}
	progress := float64(a.TodaySteps()) / float64(goal)
	if progress > 1 {
		return 1
	}
	return progress
}

// WeeklySteps returns Monday through Sunday counts of the current week. Sunday is the last
// day of its week.
func (a *Aggregator) WeeklySteps() [7]int {
	counts := *a.days.Load()
	monday := WeekStart(a.now().In(a.loc))

	var week [7]int
	for i := range week {
		week[i] = counts[domain.DateOf(monday.AddDate(0, 0, i), a.loc)]
	}
	return week
}

// WeekStart returns midnight of the Monday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

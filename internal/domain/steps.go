package domain

import "time"

// DateLayout is the calendar-day format used as the daily steps business key.
const DateLayout = "2006-01-02"

// DateOf returns the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// ParseDate parses a calendar day in loc, returning midnight of that day.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, date, loc)
}

// DailyStepRecord is the persisted step total for one user and one calendar day.
type DailyStepRecord struct {
	ID        string
	UserID    string
	Date      string
	StepCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StepCountPatch replaces the step count of a daily record.
type StepCountPatch struct {
	StepCount int
}

// EntityID implements the repository entity contract.
func (d DailyStepRecord) EntityID() string { return d.ID }

// WithID returns a copy of d carrying id.
func (d DailyStepRecord) WithID(id string) DailyStepRecord {
	d.ID = id
	return d
}

// Apply sets the new count and refreshes UpdatedAt.
func (d DailyStepRecord) Apply(p StepCountPatch, now time.Time) DailyStepRecord {
	d.StepCount = p.StepCount
	d.UpdatedAt = now
	return d
}

// SameKey reports whether d belongs to userID on date.
func (d DailyStepRecord) SameKey(userID, date string) bool {
	return d.UserID == userID && d.Date == date
}

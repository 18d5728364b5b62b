package outbox

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/events"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body
}

func TestSchemaValidatorAcceptsEventPayloads(t *testing.T) {
	validator, err := NewSchemaValidator()
	require.NoError(t, err)

	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	cases := map[string]any{
		events.TypeTaskChanged: events.TaskChanged{
			TaskID: "t-1", UserID: "u-1", Change: events.ChangeUpdated,
			Title: "Buy milk", Priority: "HIGH", IsCompleted: true, CompletionDate: &now, OccurredAt: now,
		},
		events.TypeReminderChanged: events.ReminderChanged{
			ReminderID: "r-1", UserID: "u-1", Change: events.ChangeCreated,
			Status: "PENDING", Type: "WATER", DateTime: &now, OccurredAt: now,
		},
		events.TypeDailyStepsUpdated: events.DailyStepsUpdated{
			RecordID: "d-1", UserID: "u-1", Date: "2025-03-10", StepCount: 4200, OccurredAt: now,
		},
	}
	for eventType, payload := range cases {
		require.NoError(t, validator.Validate(eventType, mustJSON(t, payload)), eventType)
	}

	deleted := events.TaskChanged{TaskID: "t-1", UserID: "u-1", Change: events.ChangeDeleted, OccurredAt: now}
	require.NoError(t, validator.Validate(events.TypeTaskChanged, mustJSON(t, deleted)))
}

func TestSchemaValidatorRejectsInvalidPayloads(t *testing.T) {
	validator, err := NewSchemaValidator()
	require.NoError(t, err)

	err = validator.Validate(events.TypeDailyStepsUpdated, []byte(`{"record_id":"d-1","user_id":"u-1","date":"10/03/2025","step_count":-4,"occurred_at":"2025-03-10T09:00:00Z"}`))
	require.ErrorIs(t, err, ErrSchemaViolation)

	err = validator.Validate(events.TypeReminderChanged, []byte(`{"reminder_id":"r-1","user_id":"u-1","change":"created","status":"SNOOZED","occurred_at":"2025-03-10T09:00:00Z"}`))
	require.ErrorIs(t, err, ErrSchemaViolation)

	err = validator.Validate(events.TypeTaskChanged, []byte(`not json`))
	require.ErrorIs(t, err, ErrSchemaViolation)

	err = validator.Validate("habit.created", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEventType)
}

type stubValidator struct {
	reject map[string]error
}

func (s stubValidator) Validate(eventType string, _ []byte) error {
	return s.reject[eventType]
}

func TestPartitionGroupsByTopicAndSeparatesRejected(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	messages := []Message{
		{EventID: 1, EventType: events.TypeTaskChanged, Topic: "task_events", PartitionKey: "u-1", AggregateID: "t-1", Payload: json.RawMessage(`{}`)},
		{EventID: 2, EventType: events.TypeDailyStepsUpdated, Topic: "daily_steps_events", PartitionKey: "u-1", Payload: json.RawMessage(`{}`)},
		{EventID: 3, EventType: events.TypeTaskChanged, Topic: "task_events", PartitionKey: "u-2", AggregateID: "t-2", Payload: json.RawMessage(`{}`)},
		{EventID: 4, EventType: "bogus", Topic: "task_events", Payload: json.RawMessage(`{}`)},
	}
	validator := stubValidator{reject: map[string]error{"bogus": errors.New("unknown")}}

	batches, rejected := partition(messages, validator, now)

	require.Len(t, rejected, 1)
	require.Equal(t, int64(4), rejected[0].message.EventID)
	require.Len(t, batches, 2)

	tasks := batches["task_events"]
	require.Len(t, tasks.records, 2)
	require.Equal(t, []byte("u-1"), tasks.records[0].Key)
	require.Equal(t, []byte("u-2"), tasks.records[1].Key)
	require.Equal(t, now, tasks.records[0].Time)
	require.Equal(t, "event_type", tasks.records[0].Headers[0].Key)
	require.Equal(t, []byte(events.TypeTaskChanged), tasks.records[0].Headers[0].Value)
	require.Len(t, batches["daily_steps_events"].messages, 1)
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	require.Zero(t, backoffDelay(time.Minute, 0))
	require.Equal(t, time.Minute, backoffDelay(time.Minute, 1))
	require.Equal(t, 2*time.Minute, backoffDelay(time.Minute, 2))
	require.Equal(t, 8*time.Minute, backoffDelay(time.Minute, 4))
	require.Equal(t, time.Hour, backoffDelay(time.Minute, 10))
	require.Equal(t, time.Hour, backoffDelay(time.Minute, 64))
}

func TestLookupKnowsEveryEventType(t *testing.T) {
	for _, eventType := range []string{events.TypeTaskChanged, events.TypeReminderChanged, events.TypeDailyStepsUpdated} {
		route, ok := Lookup(eventType)
		require.True(t, ok, eventType)
		require.NotEmpty(t, route.Topic)
		require.NotEmpty(t, route.SchemaSubject)
	}
}

func TestDLQVerdict(t *testing.T) {
	manager := NewDLQManager(nil, 3)

	_, quarantine := manager.verdict(dlqEntry{EventType: events.TypeTaskChanged, RetryCount: 2})
	require.False(t, quarantine)

	reason, quarantine := manager.verdict(dlqEntry{EventType: events.TypeTaskChanged, RetryCount: 3})
	require.True(t, quarantine)
	require.Equal(t, "retry limit reached", reason)

	reason, quarantine = manager.verdict(dlqEntry{EventType: "habit.created"})
	require.True(t, quarantine)
	require.Contains(t, reason, "habit.created")

	require.Equal(t, defaultMaxRetries, NewDLQManager(nil, 0).maxRetries)
}

package outbox

import "github.com/Camilo-RBS/Habitumapp-sub000/internal/events"

const taskChangedSchema = `{
  "type": "object",
  "title": "TaskChanged",
  "properties": {
    "task_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "change": {"enum": ["created", "updated", "deleted"]},
    "title": {"type": "string"},
    "priority": {"enum": ["LOW", "MEDIUM", "HIGH"]},
    "is_completed": {"type": "boolean"},
    "completion_date": {"type": "string", "format": "date-time"},
    "due_date": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["task_id", "user_id", "change", "is_completed", "occurred_at"],
  "additionalProperties": false
}`

const reminderChangedSchema = `{
  "type": "object",
  "title": "ReminderChanged",
  "properties": {
    "reminder_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "change": {"enum": ["created", "updated", "deleted"]},
    "status": {"enum": ["PENDING", "COMPLETED", "MISSED", "OMITTED"]},
    "type": {"enum": ["WATER", "EXERCISE", "REST", "MEDICINE", "GENERAL"]},
    "date_time": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["reminder_id", "user_id", "change", "occurred_at"],
  "additionalProperties": false
}`

const dailyStepsUpdatedSchema = `{
  "type": "object",
  "title": "DailyStepsUpdated",
  "properties": {
    "record_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "step_count": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["record_id", "user_id", "date", "step_count", "occurred_at"],
  "additionalProperties": false
}`

// Route describes where an event type is published and which schema guards it.
type Route struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var catalog = map[string]Route{
	events.TypeTaskChanged: {
		Topic:         "task_events",
		SchemaSubject: "task_events-value",
		Schema:        taskChangedSchema,
	},
	events.TypeReminderChanged: {
		Topic:         "reminder_events",
		SchemaSubject: "reminder_events-value",
		Schema:        reminderChangedSchema,
	},
	events.TypeDailyStepsUpdated: {
		Topic:         "daily_steps_events",
		SchemaSubject: "daily_steps_events-value",
		Schema:        dailyStepsUpdatedSchema,
	},
}

// Lookup returns the route for eventType.
func Lookup(eventType string) (Route, bool) {
	route, ok := catalog[eventType]
	return route, ok
}

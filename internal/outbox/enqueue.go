package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Event is a change to record in the outbox alongside the write that caused it.
type Event struct {
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       any
}

// Enqueue inserts ev into the outbox using tx, so the event commits or rolls back with the
// caller's write. Events are keyed by user to keep per-user ordering within a partition.
func Enqueue(ctx context.Context, tx pgx.Tx, ev Event) error {
	route, ok := Lookup(ev.EventType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, ev.EventType)
	}

	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		ev.UserID,
		ev.AggregateType,
		ev.AggregateID,
		ev.EventType,
		route.Topic,
		route.SchemaSubject,
		ev.UserID,
		body,
	)
	return err
}
